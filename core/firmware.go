package core

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"analogio/protocol"
)

// Firmware ties the link transport, the command registry, the data
// dictionary, the scheduler and the expansion modules into one control
// loop. Receive and Tick must be called from the same goroutine.
type Firmware struct {
	registry  *CommandRegistry
	dict      *Dictionary
	modules   *ModuleRegistry
	sched     *Scheduler
	transport *protocol.Transport
	log       *zap.Logger
}

// NewFirmware registers the bootstrap messages. identify_response and
// identify must keep IDs 0 and 1, the host relies on them before it has
// a dictionary.
func NewFirmware(output protocol.OutputBuffer, clock Clock, log *zap.Logger) *Firmware {
	f := &Firmware{
		registry: NewCommandRegistry(),
		sched:    NewScheduler(clock),
		log:      log,
	}
	f.dict = NewDictionary(f.registry, "analogio-"+protocol.Version)
	f.modules = NewModuleRegistry(f.registry, log)
	f.transport = protocol.NewTransport(output, f.dispatch)
	f.transport.SetFrameErrorCallback(func(err error) {
		f.log.Debug("frame dropped", zap.Error(err))
	})
	f.transport.SetResetCallback(func() {
		f.log.Info("host restarted sequence")
	})

	f.registry.RegisterResponse("identify_response", "offset=%u data=%*s")
	f.registry.Register("identify", "offset=%u count=%c", f.handleIdentify)
	f.registry.Register("get_clock", "", f.handleGetClock)
	f.registry.RegisterResponse("clock", "clock=%u")

	f.dict.AddConstant("CLOCK_FREQ", 1000000)
	return f
}

func (f *Firmware) Registry() *CommandRegistry { return f.registry }
func (f *Firmware) Dictionary() *Dictionary { return f.dict }
func (f *Firmware) Scheduler() *Scheduler { return f.sched }
func (f *Firmware) Transport() *protocol.Transport { return f.transport }
func (f *Firmware) Modules() *ModuleRegistry { return f.modules }

// AddModule registers m and its messages. Call before Begin.
func (f *Firmware) AddModule(m Module) error {
	return f.modules.Add(m)
}

// Begin starts the modules and freezes the dictionary.
func (f *Firmware) Begin() error {
	if err := f.modules.Begin(f); err != nil {
		return err
	}
	if err := f.dict.Build(); err != nil {
		return errors.Wrap(err, "build dictionary")
	}
	f.log.Info("firmware started",
		zap.Int("commands", f.registry.Count()),
		zap.Int("modules", len(f.modules.Modules())))
	return nil
}

// Receive parses whatever complete frames input holds.
func (f *Firmware) Receive(input protocol.InputBuffer) {
	f.transport.Receive(input)
}

// Tick runs due timers and the periodic module update.
func (f *Firmware) Tick() {
	f.sched.Dispatch()
	f.modules.Update()
}

// SendResponse encodes a registered response into the output buffer.
func (f *Firmware) SendResponse(name string, args func(output protocol.OutputBuffer)) error {
	cmd, ok := f.registry.GetCommandByName(name)
	if !ok || !cmd.IsResponse() {
		return errors.Errorf("response %q not registered", name)
	}
	f.transport.SendCommand(cmd.ID, args)
	return nil
}

func (f *Firmware) dispatch(cmdID uint16, data *[]byte) error {
	err := f.registry.Dispatch(cmdID, data)
	if err != nil {
		f.log.Warn("command rejected", zap.Uint16("cmd", cmdID), zap.Error(err))
	}
	return err
}

func (f *Firmware) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := f.dict.GetChunk(offset, uint8(count))
	return f.SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
}

func (f *Firmware) handleGetClock(data *[]byte) error {
	now := f.sched.Clock().Micros()
	return f.SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, now)
	})
}
