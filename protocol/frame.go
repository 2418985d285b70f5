package protocol

import "fmt"

// FrameErrorKind classifies why a byte stream could not be decoded.
type FrameErrorKind uint8

const (
	FrameShort    FrameErrorKind = iota // more bytes needed
	FrameLength                         // length byte out of range
	FrameSequence                       // destination bits missing
	FrameSync                           // trailing sync byte missing
	FrameCRC                            // checksum mismatch
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameShort:
		return "short"
	case FrameLength:
		return "length"
	case FrameSequence:
		return "sequence"
	case FrameSync:
		return "sync"
	case FrameCRC:
		return "crc"
	}
	return "unknown"
}

// FrameError is returned by Decode. Every kind except FrameShort means the
// stream lost synchronisation and the reader has to hunt for the next sync byte.
type FrameError struct {
	Kind FrameErrorKind
	Len  int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame error: %s (len=%d)", e.Kind, e.Len)
}

// IsShort reports whether err only signals that the frame is incomplete.
func IsShort(err error) bool {
	fe, ok := err.(*FrameError)
	return ok && fe.Kind == FrameShort
}

// Frame is one decoded message block.
type Frame struct {
	Sequence uint8
	Payload  []byte // command IDs and arguments, header and trailer removed
	CRC      uint16
}

// IsAck reports whether the frame carries no payload.
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// Decode parses one frame from the start of data and returns it together
// with the number of bytes it occupied. The payload aliases data.
func Decode(data []byte) (Frame, int, error) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, &FrameError{Kind: FrameShort, Len: len(data)}
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return Frame{}, 0, &FrameError{Kind: FrameLength, Len: msgLen}
	}

	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return Frame{}, 0, &FrameError{Kind: FrameSequence, Len: msgLen}
	}

	if len(data) < msgLen {
		return Frame{}, 0, &FrameError{Kind: FrameShort, Len: len(data)}
	}

	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return Frame{}, 0, &FrameError{Kind: FrameSync, Len: msgLen}
	}

	want := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
	if got := CRC16(data[:msgLen-MessageTrailerSize]); got != want {
		return Frame{}, 0, &FrameError{Kind: FrameCRC, Len: msgLen}
	}

	return Frame{
		Sequence: seq,
		Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
		CRC:      want,
	}, msgLen, nil
}

// Encode serialises f into a complete frame. It returns nil when the
// payload does not fit into a single frame.
func Encode(f Frame) []byte {
	msgLen := MessageHeaderSize + len(f.Payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return nil
	}

	out := make([]byte, 0, msgLen)
	out = append(out, uint8(msgLen), f.Sequence)
	out = append(out, f.Payload...)
	crc := CRC16(out)
	return append(out, uint8(crc>>8), uint8(crc), MessageValueSync)
}

// appendFrame writes a frame into output, letting body stream the payload
// straight into the buffer.
func appendFrame(output OutputBuffer, seq uint8, body func(OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if body != nil {
		body(output)
	}

	size := len(output.DataSince(cursor)) + MessageTrailerSize
	output.Update(cursor+MessagePositionLen, uint8(size))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// scanSync returns the index just past the first sync byte in data, or -1.
func scanSync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i + 1
		}
	}
	return -1
}
