package protocol

import "sync/atomic"

// CommandHandler handles one command decoded from a frame. It must consume
// its arguments from data; returning an error abandons the rest of the frame.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the module side of the link. It validates incoming frames,
// enforces the host's sequence, acknowledges every frame and hands the
// commands inside accepted frames to the handler.
type Transport struct {
	synced  atomic.Bool
	nextSeq atomic.Uint32 // sequence expected from the host, echoed in ACKs

	output  OutputBuffer
	handler CommandHandler

	onReset    func()
	onFlush    func()
	onFrameErr func(error)
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive parses every complete frame in input and pops what it consumed.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	start := len(data)

	for len(data) > 0 {
		if !t.synced.Load() {
			i := scanSync(data)
			if i < 0 {
				data = nil
				break
			}
			data = data[i:]
			t.synced.Store(true)
			t.sendAck()
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		frame, n, err := Decode(data)
		if err != nil {
			if IsShort(err) {
				break
			}
			if t.onFrameErr != nil {
				t.onFrameErr(err)
			}
			t.synced.Store(false)
			continue
		}
		data = data[n:]
		t.accept(frame)
	}

	input.Pop(start - len(data))
}

func (t *Transport) accept(frame Frame) {
	expected := uint8(t.nextSeq.Load())
	if frame.Sequence == MessageDest && expected != MessageDest {
		// the host restarted its sequence
		t.nextSeq.Store(MessageDest)
		expected = MessageDest
		if t.onReset != nil {
			t.onReset()
		}
	}

	if frame.Sequence == expected {
		t.nextSeq.Store(uint32(NextSequence(frame.Sequence)))
		_ = t.dispatch(frame.Payload)
	}
	// a mismatched sequence is answered with the expected one, acting as a NAK
	t.sendAck()
}

func (t *Transport) dispatch(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.synced.Store(false)
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synced.Store(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) sendAck() {
	appendFrame(t.output, uint8(t.nextSeq.Load()), nil)
	if t.onFlush != nil {
		t.onFlush()
	}
}

// SendCommand writes one frame carrying cmdID and its encoded arguments.
// Responses reuse the current sequence; they never advance it.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	appendFrame(t.output, uint8(t.nextSeq.Load()), func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state, as after a link reconnect.
func (t *Transport) Reset() {
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	if t.onReset != nil {
		t.onReset()
	}
}

func (t *Transport) SetResetCallback(cb func()) { t.onReset = cb }

// SetFlushCallback installs a hook run right after every ACK so it leaves
// ahead of any response generated by the same frame.
func (t *Transport) SetFlushCallback(cb func()) { t.onFlush = cb }

// SetFrameErrorCallback installs a hook for frames dropped during decoding.
func (t *Transport) SetFrameErrorCallback(cb func(error)) { t.onFrameErr = cb }

// Synchronized reports whether the receiver is aligned on frame boundaries.
func (t *Transport) Synchronized() bool { return t.synced.Load() }
