package analog

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"analogio/core"
)

// Firmware version and product reported by get_version.
const (
	FirmwareMajor   = 0
	FirmwareMinor   = 1
	FirmwareRelease = 0
	ProductID       = "ANALOG_EXPANSION"
)

// DefaultRtdUpdateRate is the RTD refresh period until the host sets one.
const DefaultRtdUpdateRate = time.Second

// Module exposes a Driver to the host through the firmware loop.
type Module struct {
	drv      *Driver
	sched    *core.Scheduler
	out      core.Responder
	log      *zap.Logger
	handlers map[string]handlerFunc

	rtdRate  uint32
	rtdTimer core.Timer
}

// NewModule binds drv to the firmware scheduler. A zero rtdRate disables
// the periodic RTD refresh.
func NewModule(drv *Driver, sched *core.Scheduler, rtdRate time.Duration, log *zap.Logger) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Module{
		drv:      drv,
		sched:    sched,
		log:      log.Named("analog"),
		handlers: make(map[string]handlerFunc, len(commands)),
		rtdRate:  core.TimerFromDuration(rtdRate),
	}
	for _, c := range commands {
		m.handlers[c.name] = c.handler
	}
	m.rtdTimer.Handler = m.rtdTick
	return m
}

func (m *Module) Name() string { return "analog" }

// Driver returns the driver behind the module.
func (m *Module) Driver() *Driver { return m.drv }

func (m *Module) Messages() []core.Message {
	msgs := make([]core.Message, 0, len(commands)+len(responses))
	for _, c := range commands {
		msgs = append(msgs, core.Message{Name: c.name, Format: c.format})
	}
	return append(msgs, responses...)
}

func (m *Module) Begin(out core.Responder) error {
	m.out = out
	if err := m.drv.Begin(); err != nil {
		return err
	}
	if m.rtdRate != 0 {
		m.scheduleRtd()
	}
	return nil
}

func (m *Module) Update() error {
	return m.drv.Update()
}

// ParseRx runs the handler of cmd. It returns an error only for frames
// that could not be decoded; everything else is answered on the link.
func (m *Module) ParseRx(cmd *core.Command, data *[]byte) error {
	h, ok := m.handlers[cmd.Name]
	if !ok {
		return errors.Wrapf(core.ErrUnknownCommand, "analog: %s", cmd.Name)
	}
	return h(m, cmd, data)
}

// SetRtdUpdateRate changes the RTD refresh period. Zero stops it.
func (m *Module) SetRtdUpdateRate(ms uint32) {
	m.rtdRate = core.TimerFromMS(ms)
	if m.rtdRate == 0 {
		m.sched.Cancel(&m.rtdTimer)
		return
	}
	m.scheduleRtd()
}

// RtdUpdateRate returns the refresh period in clock ticks.
func (m *Module) RtdUpdateRate() uint32 { return m.rtdRate }

func (m *Module) scheduleRtd() {
	m.rtdTimer.WakeTime = m.sched.Clock().Micros() + m.rtdRate
	m.sched.Schedule(&m.rtdTimer)
}

func (m *Module) rtdTick(t *core.Timer) uint8 {
	for _, ch := range Channels() {
		if !m.drv.FunctionOf(ch).IsRtd() || !m.drv.AdcEnabled(ch) {
			continue
		}
		if err := m.drv.UpdateRtd(ch); err != nil {
			m.log.Debug("rtd update", zap.Stringer("ch", ch), zap.Error(err))
		}
	}
	if m.rtdRate == 0 {
		return core.SF_DONE
	}
	// Rearmed from now, a late tick does not catch up.
	t.WakeTime = m.sched.Clock().Micros() + m.rtdRate
	return core.SF_RESCHEDULE
}
