package core

// AppendUint appends the decimal form of n to buf without using fmt
func AppendUint(buf []byte, n uint64) []byte {
	if n == 0 {
		return append(buf, '0')
	}

	var tmp [20]byte
	pos := len(tmp)
	for n > 0 {
		pos--
		tmp[pos] = byte('0' + n%10)
		n /= 10
	}
	return append(buf, tmp[pos:]...)
}

// AppendInt appends the decimal form of a signed value
func AppendInt(buf []byte, n int64) []byte {
	if n < 0 {
		buf = append(buf, '-')
		return AppendUint(buf, uint64(-n))
	}
	return AppendUint(buf, uint64(n))
}

// AppendPadded appends n right-aligned in width columns, padded with pad
func AppendPadded(buf []byte, n int64, width int, pad byte) []byte {
	var tmp [21]byte
	digits := AppendInt(tmp[:0], n)
	if pad == '0' && n < 0 {
		buf = append(buf, '-')
		digits = digits[1:]
		width--
	}
	for i := len(digits); i < width; i++ {
		buf = append(buf, pad)
	}
	return append(buf, digits...)
}

// itoa converts an integer to a string without using fmt package
func itoa(n int) string {
	return string(AppendInt(nil, int64(n)))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	return string(AppendUint(nil, uint64(n)))
}

// valueToString converts a dictionary constant to its string form
func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return itoa(val)
	case int32:
		return itoa(int(val))
	case int64:
		return string(AppendInt(nil, val))
	case uint:
		return string(AppendUint(nil, uint64(val)))
	case uint32:
		return utoa(val)
	case uint64:
		return string(AppendUint(nil, val))
	default:
		return ""
	}
}
