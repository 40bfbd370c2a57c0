package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// EncodeVLQInt writes v as a variable length quantity: seven bits per byte,
// most significant group first, continuation in bit 7. Values in
// [-32, 96) fit in one byte; the sign is carried by bits 5 and 6 of the
// first byte.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	n := 0
	if v < -(1<<26) || v >= 3<<26 {
		buf[n] = byte(v>>28)&0x7F | 0x80
		n++
	}
	if v < -(1<<19) || v >= 3<<19 {
		buf[n] = byte(v>>21)&0x7F | 0x80
		n++
	}
	if v < -(1<<12) || v >= 3<<12 {
		buf[n] = byte(v>>14)&0x7F | 0x80
		n++
	}
	if v < -(1<<5) || v >= 3<<5 {
		buf[n] = byte(v>>7)&0x7F | 0x80
		n++
	}
	buf[n] = byte(v) & 0x7F
	output.Output(buf[:n+1])
}

// EncodeVLQUint writes an unsigned value; it shares the signed encoding
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one VLQ from the front of data and advances it
func DecodeVLQInt(data *[]byte) (int32, error) {
	src := *data
	if len(src) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32(src[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(src) {
			return 0, ErrBufferTooSmall
		}
		if i == 5 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(src[i])
		v = v<<7 | c&0x7F
		i++
	}
	*data = src[i:]
	return int32(v), nil
}

// DecodeVLQUint reads one unsigned VLQ
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQ returns the encoding of v as a new slice
func EncodeVLQ(v int32) []byte {
	out := NewScratchOutput()
	EncodeVLQInt(out, v)
	return append([]byte(nil), out.Result()...)
}

// DecodeVLQ decodes without consuming; it returns the value and its length
func DecodeVLQ(data []byte) (int32, int, error) {
	rest := data
	v, err := DecodeVLQInt(&rest)
	if err != nil {
		return 0, 0, err
	}
	return v, len(data) - len(rest), nil
}

// EncodeVLQBytes writes a length prefixed byte string
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes reads a length prefixed byte string. The result aliases data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	rest := *data
	n, err := DecodeVLQUint(&rest)
	if err != nil {
		return nil, err
	}
	if uint32(len(rest)) < n {
		return nil, ErrBufferTooSmall
	}
	*data = rest[n:]
	return rest[:n], nil
}

// EncodeVLQString writes a length prefixed string
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQBytes(output, []byte(s))
}

// DecodeVLQString reads a length prefixed string
func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
