package protocol

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrStopped     = errors.New("transport stopped")
	ErrTimeout     = errors.New("timeout")
	ErrMessageSize = errors.New("message too long")
)

// ResponseHandler receives every response frame's command ID and arguments.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host side of the link: it sequences outgoing
// commands, waits for their ACKs and queues responses.
type HostTransport struct {
	port io.ReadWriteCloser

	seq    atomic.Uint32
	synced atomic.Bool

	input    *FifoBuffer
	inputMu  sync.Mutex
	writeMu  sync.Mutex
	handlerM sync.RWMutex
	handler  ResponseHandler

	acks      chan Frame
	responses chan Frame

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewHostTransport starts a reader goroutine on port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		input:     NewFifoBuffer(1024),
		acks:      make(chan Frame, 1),
		responses: make(chan Frame, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.seq.Store(MessageDest)
	t.synced.Store(true)

	go t.readLoop()
	return t
}

// SendCommand sends one command and waits up to two seconds for its ACK.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	seq := uint8(t.seq.Load())
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}

	msg := Encode(Frame{Sequence: seq, Payload: scratch.Result()})
	if msg == nil {
		return errors.Wrapf(ErrMessageSize, "command %d: %d byte payload", cmdID, scratch.CurPosition())
	}

	n, err := t.port.Write(msg)
	if err != nil {
		return errors.Wrap(err, "write frame")
	}
	if n != len(msg) {
		return errors.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}

	return t.waitForAck(seq, timeout)
}

func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	want := NextSequence(seq)
	for {
		select {
		case ack := <-t.acks:
			if ack.Sequence != want {
				// stale ACK from an earlier retransmit, keep waiting
				continue
			}
			t.seq.Store(uint32(want))
			return nil
		case <-timer.C:
			return errors.Wrapf(ErrTimeout, "ACK for sequence 0x%02x after %v", seq, timeout)
		case <-t.stop:
			return ErrStopped
		}
	}
}

// ReceiveResponse returns the next queued response frame.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (Frame, error) {
	select {
	case resp := <-t.responses:
		return resp, nil
	case <-time.After(timeout):
		return Frame{}, errors.Wrapf(ErrTimeout, "response after %v", timeout)
	case <-t.stop:
		return Frame{}, ErrStopped
	}
}

// SetResponseHandler installs a callback run for every response before it is queued.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerM.Lock()
	t.handler = handler
	t.handlerM.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if err == io.EOF {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n > 0 {
			t.feed(buf[:n])
		}
	}
}

// feed appends raw bytes and dispatches every complete frame.
func (t *HostTransport) feed(b []byte) {
	t.inputMu.Lock()
	defer t.inputMu.Unlock()

	t.input.Write(b)
	data := t.input.Data()
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
			t.synced.Store(false)
			continue
		}
		data = data[n:]

		// the fifo reuses its storage, detach the payload
		frame.Payload = append([]byte(nil), frame.Payload...)
		t.dispatch(frame)
	}

	t.input.Pop(start - len(data))
}

func (t *HostTransport) dispatch(frame Frame) {
	if frame.IsAck() {
		select {
		case t.acks <- frame:
		default:
			// drop the older ACK, only the newest sequence matters
			select {
			case <-t.acks:
			default:
			}
			t.acks <- frame
		}
		return
	}

	t.handlerM.RLock()
	handler := t.handler
	t.handlerM.RUnlock()
	if handler != nil {
		payload := frame.Payload
		if cmdID, err := DecodeVLQUint(&payload); err == nil {
			_ = handler(uint16(cmdID), &payload)
		}
	}

	select {
	case t.responses <- frame:
	default:
		select {
		case <-t.responses:
		default:
		}
		t.responses <- frame
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.stop)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.done
	})
	return err
}

// Reset drops queued input and restarts the sequence.
func (t *HostTransport) Reset() {
	t.inputMu.Lock()
	t.input.Reset()
	t.inputMu.Unlock()

	t.synced.Store(true)
	t.seq.Store(MessageDest)
	for len(t.acks) > 0 {
		<-t.acks
	}
	for len(t.responses) > 0 {
		<-t.responses
	}
}

// Sequence returns the sequence byte the next command will carry.
func (t *HostTransport) Sequence() uint8 {
	return uint8(t.seq.Load())
}
