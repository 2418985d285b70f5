package protocol

import (
	"bytes"
	"testing"
)

func TestVLQKnownEncodings(t *testing.T) {
	testCases := []struct {
		value   int32
		encoded []byte
	}{
		{0, []byte{0x00}},
		{95, []byte{0x5F}},
		{96, []byte{0x80, 0x60}},
		{-1, []byte{0x7F}},
		{-32, []byte{0x60}},
		{-33, []byte{0xFF, 0x5F}},
		{8191, []byte{0xBF, 0x7F}},
	}

	for _, tc := range testCases {
		got := EncodeVLQ(tc.value)
		if !bytes.Equal(got, tc.encoded) {
			t.Errorf("EncodeVLQ(%d) = % X, want % X", tc.value, got, tc.encoded)
		}

		v, n, err := DecodeVLQ(tc.encoded)
		if err != nil {
			t.Errorf("DecodeVLQ(% X): %v", tc.encoded, err)
			continue
		}
		if v != tc.value || n != len(tc.encoded) {
			t.Errorf("DecodeVLQ(% X) = %d (%d bytes), want %d (%d bytes)", tc.encoded, v, n, tc.value, len(tc.encoded))
		}
	}
}

func TestVLQBoundaries(t *testing.T) {
	// Every width switch point, on both sides.
	for _, b := range vlqBounds {
		for _, v := range []int32{b.low - 1, b.low, b.top - 1, b.top} {
			data := EncodeVLQ(v)
			decoded, err := DecodeVLQInt(&data)
			if err != nil {
				t.Errorf("decode %d: %v", v, err)
				continue
			}
			if decoded != v {
				t.Errorf("decode %d: got %d", v, decoded)
			}
			if len(data) != 0 {
				t.Errorf("decode %d: %d bytes left over", v, len(data))
			}
		}
	}
}

func TestVLQSequence(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQUint(output, 7)
	EncodeVLQString(output, "rtd")
	EncodeVLQInt(output, -1000)

	data := output.Result()
	id, err := DecodeVLQUint(&data)
	if err != nil || id != 7 {
		t.Fatalf("id = %d, %v", id, err)
	}
	name, err := DecodeVLQString(&data)
	if err != nil || name != "rtd" {
		t.Fatalf("name = %q, %v", name, err)
	}
	v, err := DecodeVLQInt(&data)
	if err != nil || v != -1000 {
		t.Fatalf("value = %d, %v", v, err)
	}
	if len(data) != 0 {
		t.Errorf("%d bytes left over", len(data))
	}
}

func TestVLQBufferTooSmall(t *testing.T) {
	data := []byte{0x80}
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall, got %v", err)
	}
	if len(data) != 1 {
		t.Error("failed decode consumed input")
	}

	short := []byte{0x05, 0x01}
	if _, err := DecodeVLQBytes(&short); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall for truncated bytes, got %v", err)
	}
}

func TestVLQTooLong(t *testing.T) {
	data := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); err != ErrInvalidVLQ {
		t.Errorf("Expected ErrInvalidVLQ, got %v", err)
	}
}
