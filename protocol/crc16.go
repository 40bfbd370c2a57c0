package protocol

// CRC16 is the CCITT checksum carried in every frame trailer
// (reflected polynomial 0x8408, initial value 0xFFFF, no final xor).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= byte(crc)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return crc
}
