package core

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"analogio/protocol"
)

// Loop runs a Firmware against a byte stream: a reader goroutine hands
// received bytes to the control loop, which parses them from a FIFO, flushes
// the output after every ACK and ticks the firmware at a fixed interval.
type Loop struct {
	fw    *Firmware
	port  io.ReadWriter
	out   *protocol.ScratchOutput
	input *protocol.FifoBuffer
	tick  time.Duration
	log   *zap.Logger
}

// NewLoop builds the firmware of the loop. Register modules on
// Firmware() and call its Begin before Run.
func NewLoop(port io.ReadWriter, clock Clock, tick time.Duration, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Loop{
		port:  port,
		out:   protocol.NewScratchOutput(),
		input: protocol.NewFifoBuffer(1024),
		tick:  tick,
		log:   log,
	}
	l.fw = NewFirmware(l.out, clock, log)
	l.fw.Transport().SetFlushCallback(l.flush)
	return l
}

func (l *Loop) Firmware() *Firmware { return l.fw }

func (l *Loop) flush() {
	data := l.out.Result()
	if len(data) == 0 {
		return
	}
	if _, err := l.port.Write(data); err != nil {
		l.log.Warn("link write failed", zap.Error(err))
	}
	l.out.Reset()
}

// Run serves the link until ctx is done or the stream fails. Closing the
// stream is up to the caller.
func (l *Loop) Run(ctx context.Context) error {
	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := l.port.Read(buf)
			if n > 0 {
				select {
				case chunks <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "link read")
		case chunk := <-chunks:
			l.receive(chunk)
		case <-ticker.C:
			l.fw.Tick()
			l.flush()
		}
	}
}

func (l *Loop) receive(chunk []byte) {
	for len(chunk) > 0 {
		n := l.input.Write(chunk)
		chunk = chunk[n:]

		in := protocol.NewSliceInputBuffer(l.input.Data())
		before := in.Available()
		l.fw.Receive(in)
		l.input.Pop(before - in.Available())

		if n == 0 && in.Available() == before {
			// a full FIFO that does not parse is garbage
			l.log.Warn("input overflow, dropping buffered bytes", zap.Int("bytes", before))
			l.input.Reset()
		}
	}
	l.flush()
}
