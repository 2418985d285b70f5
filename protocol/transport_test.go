package protocol

import (
	"bytes"
	"net"
	"testing"
	"time"
)

type recorded struct {
	id   uint16
	args []uint32
}

// newRecordingTransport returns a transport whose handler decodes a fixed
// number of VLQ arguments per command.
func newRecordingTransport(argc int) (*Transport, *ScratchOutput, *[]recorded) {
	out := NewScratchOutput()
	var got []recorded
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		r := recorded{id: cmdID}
		for i := 0; i < argc; i++ {
			v, err := DecodeVLQUint(data)
			if err != nil {
				return err
			}
			r.args = append(r.args, v)
		}
		got = append(got, r)
		return nil
	})
	return tr, out, &got
}

func commandFrame(seq uint8, cmdID uint16, args ...uint32) []byte {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	for _, a := range args {
		EncodeVLQUint(scratch, a)
	}
	return Encode(Frame{Sequence: seq, Payload: scratch.Result()})
}

func TestDecodeRejects(t *testing.T) {
	good := commandFrame(MessageDest, 3, 1)

	badCRC := append([]byte(nil), good...)
	badCRC[2] ^= 0xFF

	badSync := append([]byte(nil), good...)
	badSync[len(badSync)-1] = 0

	badSeq := append([]byte(nil), good...)
	badSeq[MessagePositionSeq] = 0x20

	testCases := []struct {
		name string
		data []byte
		kind FrameErrorKind
	}{
		{"short", good[:3], FrameShort},
		{"truncated", good[:len(good)-1], FrameShort},
		{"length", []byte{2, MessageDest, 0, 0, MessageValueSync}, FrameLength},
		{"sequence", badSeq, FrameSequence},
		{"sync", badSync, FrameSync},
		{"crc", badCRC, FrameCRC},
	}

	for _, tc := range testCases {
		_, _, err := Decode(tc.data)
		fe, ok := err.(*FrameError)
		if !ok {
			t.Errorf("%s: err = %v, want *FrameError", tc.name, err)
			continue
		}
		if fe.Kind != tc.kind {
			t.Errorf("%s: kind = %s, want %s", tc.name, fe.Kind, tc.kind)
		}
	}

	frame, n, err := Decode(good)
	if err != nil || n != len(good) {
		t.Fatalf("Decode(good) = %d, %v", n, err)
	}
	if !bytes.Equal(Encode(frame), good) {
		t.Error("re-encoding a decoded frame changed it")
	}
}

func TestTransportDispatchAndAck(t *testing.T) {
	tr, out, got := newRecordingTransport(1)

	stream := append(commandFrame(MessageDest, 4, 99), commandFrame(MessageDest+1, 5, 7)...)
	tr.Receive(NewSliceInputBuffer(stream))

	if len(*got) != 2 || (*got)[0].id != 4 || (*got)[0].args[0] != 99 || (*got)[1].id != 5 {
		t.Fatalf("dispatched %+v", *got)
	}

	want := append(Encode(Frame{Sequence: MessageDest + 1}), Encode(Frame{Sequence: MessageDest + 2})...)
	if !bytes.Equal(out.Result(), want) {
		t.Errorf("ACKs = % X, want % X", out.Result(), want)
	}
}

func TestTransportNakOnSequenceMismatch(t *testing.T) {
	tr, out, got := newRecordingTransport(1)

	tr.Receive(NewSliceInputBuffer(commandFrame(MessageDest, 4, 1)))
	out.Reset()

	// 0x13 while 0x11 is expected: dropped, and the ACK names 0x11
	tr.Receive(NewSliceInputBuffer(commandFrame(MessageDest+3, 4, 2)))

	if len(*got) != 1 {
		t.Errorf("out of sequence frame was dispatched: %+v", *got)
	}
	if !bytes.Equal(out.Result(), Encode(Frame{Sequence: MessageDest + 1})) {
		t.Errorf("NAK = % X", out.Result())
	}
}

func TestTransportResyncAfterGarbage(t *testing.T) {
	tr, _, got := newRecordingTransport(1)
	var frameErrs int
	tr.SetFrameErrorCallback(func(error) { frameErrs++ })

	bad := commandFrame(MessageDest, 4, 1)
	bad[2] ^= 0x55

	stream := append(bad, commandFrame(MessageDest, 6, 3)...)
	tr.Receive(NewSliceInputBuffer(stream))

	if frameErrs == 0 {
		t.Error("expected a frame error")
	}
	if len(*got) != 1 || (*got)[0].id != 6 {
		t.Errorf("dispatched %+v, want command 6 only", *got)
	}
	if !tr.Synchronized() {
		t.Error("transport did not resynchronise")
	}
}

func TestTransportPartialFrame(t *testing.T) {
	tr, _, got := newRecordingTransport(1)
	frame := commandFrame(MessageDest, 9, 300)

	fifo := NewFifoBuffer(128)
	fifo.Write(frame[:4])
	tr.Receive(fifo)
	if len(*got) != 0 || fifo.Available() != 4 {
		t.Fatalf("partial frame consumed: got=%v left=%d", *got, fifo.Available())
	}

	fifo.Write(frame[4:])
	tr.Receive(fifo)
	if len(*got) != 1 || (*got)[0].args[0] != 300 {
		t.Errorf("dispatched %+v", *got)
	}
	if !fifo.IsEmpty() {
		t.Errorf("%d bytes left in fifo", fifo.Available())
	}
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostEnd, moduleEnd := net.Pipe()

	out := NewScratchOutput()
	var echo []uint32
	module := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		echo = append(echo, v+1)
		return nil
	})

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := moduleEnd.Read(buf)
			if err != nil {
				return
			}
			out.Reset()
			echo = echo[:0]
			module.Receive(NewSliceInputBuffer(append([]byte(nil), buf[:n]...)))
			for _, v := range echo {
				module.SendCommand(20, func(o OutputBuffer) { EncodeVLQUint(o, v) })
			}
			if _, err := moduleEnd.Write(append([]byte(nil), out.Result()...)); err != nil {
				return
			}
		}
	}()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	if err := host.SendCommand(11, func(o OutputBuffer) { EncodeVLQUint(o, 41) }); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if host.Sequence() != MessageDest+1 {
		t.Errorf("sequence = 0x%02x", host.Sequence())
	}

	resp, err := host.ReceiveResponse(time.Second)
	if err != nil {
		t.Fatalf("ReceiveResponse: %v", err)
	}
	payload := resp.Payload
	id, _ := DecodeVLQUint(&payload)
	v, _ := DecodeVLQUint(&payload)
	if id != 20 || v != 42 {
		t.Errorf("response = %d %d", id, v)
	}
}
