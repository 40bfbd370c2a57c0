package protocol

import (
	"bytes"
	"testing"
)

func TestVLQRoundTrip(t *testing.T) {
	values := []int32{
		0, 1, -1, 31, -32, 95, 96, -33,
		127, -127, 128, -128, 1000, -1000, 12287, 12288,
		65535, -65535, 1000000, -1000000,
		1 << 30, -(1 << 30), 2147483647, -2147483648,
	}

	for _, want := range values {
		out := NewScratchOutput()
		EncodeVLQInt(out, want)
		data := out.Result()

		got, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Decode %d: %v", want, err)
			continue
		}
		if got != want {
			t.Errorf("Round trip of %d gave %d", want, got)
		}
		if len(data) != 0 {
			t.Errorf("Decode of %d left %d bytes", want, len(data))
		}
	}
}

func TestVLQUintRoundTrip(t *testing.T) {
	for _, want := range []uint32{0, 95, 96, 600, 65535, 0xFFFFFFFF} {
		out := NewScratchOutput()
		EncodeVLQUint(out, want)
		data := out.Result()
		got, err := DecodeVLQUint(&data)
		if err != nil || got != want {
			t.Errorf("Uint round trip of %d gave %d (%v)", want, got, err)
		}
	}
}

func TestVLQEncodedLength(t *testing.T) {
	tests := []struct {
		value int32
		size  int
	}{
		{0, 1},
		{95, 1},
		{-32, 1},
		{96, 2},
		{-33, 2},
		{12287, 2},
		{12288, 3},
		{-(1 << 30), 5},
	}

	for _, tt := range tests {
		if got := len(EncodeVLQ(tt.value)); got != tt.size {
			t.Errorf("EncodeVLQ(%d) is %d bytes, want %d", tt.value, got, tt.size)
		}
	}
}

func TestVLQDecodeErrors(t *testing.T) {
	empty := []byte{}
	if _, err := DecodeVLQInt(&empty); err != ErrBufferTooSmall {
		t.Errorf("Empty input: got %v", err)
	}

	truncated := []byte{0x81}
	if _, err := DecodeVLQInt(&truncated); err != ErrBufferTooSmall {
		t.Errorf("Truncated input: got %v", err)
	}
	if len(truncated) != 1 {
		t.Error("Failed decode consumed input")
	}

	overlong := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&overlong); err != ErrInvalidVLQ {
		t.Errorf("Overlong input: got %v", err)
	}
}

func TestDecodeVLQDoesNotConsume(t *testing.T) {
	data := EncodeVLQ(1000)
	v, n, err := DecodeVLQ(data)
	if err != nil || v != 1000 || n != len(data) {
		t.Errorf("DecodeVLQ = %d, %d, %v", v, n, err)
	}
}

func TestVLQBytesAndStrings(t *testing.T) {
	out := NewScratchOutput()
	EncodeVLQBytes(out, []byte{0xDE, 0xAD})
	EncodeVLQString(out, "Left")
	data := out.Result()

	b, err := DecodeVLQBytes(&data)
	if err != nil || !bytes.Equal(b, []byte{0xDE, 0xAD}) {
		t.Errorf("DecodeVLQBytes = %v, %v", b, err)
	}
	s, err := DecodeVLQString(&data)
	if err != nil || s != "Left" {
		t.Errorf("DecodeVLQString = %q, %v", s, err)
	}

	short := []byte{5, 1, 2}
	if _, err := DecodeVLQBytes(&short); err != ErrBufferTooSmall {
		t.Errorf("Short byte string: got %v", err)
	}
}
