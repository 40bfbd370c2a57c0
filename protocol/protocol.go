// Package protocol implements the framed serial link between a lead-screw
// controller and a host: VLQ encoded integers inside CRC16 protected frames.
//
// A frame is laid out as
//
//	len | seq | payload ... | crc_hi | crc_lo | 0x7E
//
// where len counts the whole frame and the high nibble of seq is always 0x1.
package protocol

// Version of the link protocol
const Version = "leadscrew-link-1"

const (
	MessageMax         = 512 // scratch output capacity
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F
)

// frameStatus is the outcome of inspecting the bytes at a frame boundary
type frameStatus uint8

const (
	frameIncomplete frameStatus = iota
	frameValid
	frameCorrupt
)

// checkFrame looks at data starting at a frame boundary and reports whether a
// complete, intact frame is present. On frameValid it also returns the frame
// length.
func checkFrame(data []byte) (int, frameStatus) {
	if len(data) < MessageLengthMin {
		return 0, frameIncomplete
	}
	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return 0, frameCorrupt
	}
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return 0, frameCorrupt
	}
	if len(data) < msgLen {
		return 0, frameIncomplete
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return 0, frameCorrupt
	}
	got := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
	if got != CRC16(data[:msgLen-MessageTrailerSize]) {
		return 0, frameCorrupt
	}
	return msgLen, frameValid
}

// skipToSync drops bytes up to and including the next sync byte.
// ok is false when no sync byte is present.
func skipToSync(data []byte) (rest []byte, ok bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// nextSequence advances a sequence byte within the 0x10..0x1F window
func nextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// appendTrailer appends the CRC of frame and the sync byte
func appendTrailer(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc>>8), byte(crc), MessageValueSync)
}
