package serial

import (
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// NativePort wraps the tarm/serial implementation
type NativePort struct {
	port *serial.Port
	cfg  *Config
}

// openPort is swapped out by tests.
var openPort = func(cfg *Config) (Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", cfg.Device)
	}
	return &NativePort{port: port, cfg: cfg}, nil
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	return openPort(cfg)
}

// OpenWithRetry keeps trying to open the port, backing off exponentially,
// until it succeeds or maxElapsed has passed. The module's USB gadget
// shows up a moment after power-on.
func OpenWithRetry(cfg *Config, maxElapsed time.Duration, log *zap.Logger) (Port, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var port Port
	op := func() error {
		p, err := openPort(cfg)
		if err != nil {
			log.Debug("serial open failed", zap.String("device", cfg.Device), zap.Error(err))
			return err
		}
		port = p
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         time.Second,
		MaxElapsedTime:      maxElapsed,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, errors.Wrapf(err, "%s not available after %v", cfg.Device, maxElapsed)
	}
	return port, nil
}

// Read returns 0, nil when a read timeout expires without data.
func (p *NativePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) && p.cfg.ReadTimeout > 0 {
		return 0, nil
	}
	return n, err
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush drops unread input.
func (p *NativePort) Flush() error {
	return p.port.Flush()
}
