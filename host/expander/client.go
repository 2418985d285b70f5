// Package expander is the host side client of the analog expansion
// module: it fetches the module's data dictionary and sends commands by
// name.
package expander

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"analogio/core"
	"analogio/host/serial"
	"analogio/protocol"
)

var (
	// ErrRejected is returned when the module answers command_status ok=0.
	ErrRejected = errors.New("command rejected by module")

	ErrNoDictionary = errors.New("dictionary not loaded")
)

const (
	identifyResponseID = 0
	identifyID         = 1
	chunkSize          = 40
)

// Client talks to one module over a serial link.
type Client struct {
	transport *protocol.HostTransport
	timeout   time.Duration
	log       *zap.Logger

	mu        sync.Mutex
	dict      *core.DictionaryData
	raw       []byte
	commands  map[string]uint16
	responses map[string]uint16
}

// NewClient starts the link on port. timeout bounds every request.
func NewClient(port serial.Port, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		transport: protocol.NewHostTransport(port),
		timeout:   timeout,
		log:       log,
	}
}

// Dial opens the serial device, retrying until retry has passed, and
// loads the dictionary.
func Dial(cfg *serial.Config, retry, timeout time.Duration, log *zap.Logger) (*Client, error) {
	port, err := serial.OpenWithRetry(cfg, retry, log)
	if err != nil {
		return nil, err
	}
	c := NewClient(port, timeout, log)
	if err := c.RetrieveDictionary(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.transport.Close()
}

// RetrieveDictionary reads the compressed dictionary in chunks through
// identify and indexes its commands and responses by name.
func (c *Client) RetrieveDictionary() error {
	var buf bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := c.identify(offset)
		if err != nil {
			return errors.Wrapf(err, "dictionary chunk at offset %d", offset)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < chunkSize {
			break
		}
	}

	dict, err := core.ParseDictionary(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "failed to parse dictionary")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = buf.Bytes()
	c.dict = dict
	c.commands = byName(dict.Commands)
	c.responses = byName(dict.Responses)
	c.log.Info("dictionary loaded", zap.String("version", dict.Version),
		zap.Int("bytes", len(c.raw)), zap.Int("commands", len(c.commands)))
	return nil
}

// byName indexes dictionary entries, keyed "name format", by name.
func byName(entries map[string]int) map[string]uint16 {
	out := make(map[string]uint16, len(entries))
	for sig, id := range entries {
		name, _, _ := strings.Cut(sig, " ")
		out[name] = uint16(id)
	}
	return out
}

func (c *Client) identify(offset uint32) ([]byte, error) {
	err := c.transport.SendCommandWithTimeout(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, chunkSize)
	}, c.timeout)
	if err != nil {
		return nil, err
	}

	p, err := c.await(identifyResponseID)
	if err != nil {
		return nil, err
	}
	got, err := protocol.DecodeVLQUint(&p)
	if err != nil {
		return nil, err
	}
	if got != offset {
		return nil, errors.Errorf("offset mismatch: expected %d, got %d", offset, got)
	}
	return protocol.DecodeVLQBytes(&p)
}

// Dictionary returns the parsed dictionary, nil before RetrieveDictionary.
func (c *Client) Dictionary() *core.DictionaryData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dict
}

// DictionaryRaw returns the compressed dictionary as received.
func (c *Client) DictionaryRaw() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw
}

func (c *Client) lookup(response bool, name string) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dict == nil {
		return 0, ErrNoDictionary
	}
	table := c.commands
	if response {
		table = c.responses
	}
	id, ok := table[name]
	if !ok {
		return 0, errors.Wrapf(core.ErrUnknownCommand, "%s", name)
	}
	return id, nil
}

// Send sends a command by name. Arguments are encoded in order: integers
// as VLQ, byte slices as length-prefixed strings.
func (c *Client) Send(name string, args ...any) error {
	id, err := c.lookup(false, name)
	if err != nil {
		return err
	}

	enc := make([]func(protocol.OutputBuffer), len(args))
	for i, a := range args {
		if enc[i] = encoder(a); enc[i] == nil {
			return errors.Errorf("%s: argument %d has unsupported type %T", name, i, a)
		}
	}

	err = c.transport.SendCommandWithTimeout(id, func(output protocol.OutputBuffer) {
		for _, e := range enc {
			e(output)
		}
	}, c.timeout)
	return errors.Wrapf(err, "send %s", name)
}

// encoder returns the wire encoding of one argument, nil for types the
// protocol has no encoding for.
func encoder(a any) func(protocol.OutputBuffer) {
	switch v := a.(type) {
	case uint32:
		return func(o protocol.OutputBuffer) { protocol.EncodeVLQUint(o, v) }
	case int:
		return func(o protocol.OutputBuffer) { protocol.EncodeVLQInt(o, int32(v)) }
	case int32:
		return func(o protocol.OutputBuffer) { protocol.EncodeVLQInt(o, v) }
	case uint16:
		return func(o protocol.OutputBuffer) { protocol.EncodeVLQUint(o, uint32(v)) }
	case uint8:
		return func(o protocol.OutputBuffer) { protocol.EncodeVLQUint(o, uint32(v)) }
	case bool:
		return func(o protocol.OutputBuffer) { protocol.EncodeVLQUint(o, boolArg(v)) }
	case []byte:
		return func(o protocol.OutputBuffer) { protocol.EncodeVLQBytes(o, v) }
	}
	return nil
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Request sends name and returns the arguments of the named response.
func (c *Client) Request(name, response string, args ...any) ([]byte, error) {
	respID, err := c.lookup(true, response)
	if err != nil {
		return nil, err
	}
	statusID, _ := c.lookup(true, "command_status")

	if err := c.Send(name, args...); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	for {
		frame, err := c.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, errors.Wrapf(err, "waiting for %s", response)
		}
		p := frame.Payload
		id, err := protocol.DecodeVLQUint(&p)
		if err != nil {
			continue
		}
		switch {
		case uint16(id) == respID:
			return p, nil
		case uint16(id) == statusID && response != "command_status":
			// the module refused instead of answering
			return nil, errors.Wrapf(ErrRejected, "%s", name)
		}
		c.log.Debug("unexpected response", zap.Uint32("id", id), zap.String("waiting_for", response))
	}
}

// await returns the arguments of the next response with the given ID.
func (c *Client) await(id uint16) ([]byte, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		frame, err := c.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		p := frame.Payload
		got, err := protocol.DecodeVLQUint(&p)
		if err == nil && uint16(got) == id {
			return p, nil
		}
	}
}

// Status sends a set or setup command and checks its command_status.
func (c *Client) Status(name string, args ...any) error {
	p, err := c.Request(name, "command_status", args...)
	if err != nil {
		return err
	}
	if _, err := protocol.DecodeVLQUint(&p); err != nil {
		return err
	}
	ok, err := protocol.DecodeVLQUint(&p)
	if err != nil {
		return err
	}
	if ok == 0 {
		return errors.Wrapf(ErrRejected, "%s", name)
	}
	return nil
}
