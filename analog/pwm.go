package analog

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"analogio/core"
)

// PwmChannel is one of the four PWM outputs.
type PwmChannel uint8

// NewPwmChannel validates a PWM index received from outside.
func NewPwmChannel(i int) (PwmChannel, error) {
	if i < 0 || i >= NumPwm {
		return 0, errors.Wrapf(ErrInvalidChannel, "pwm %d", i)
	}
	return PwmChannel(i), nil
}

// PwmConfig is the staged period and high time in microseconds.
type PwmConfig struct {
	PeriodUs uint32
	PulseUs  uint32
}

type pwmState struct {
	out     core.PWMOutput
	cfg     slot[PwmConfig]
	running bool
}

// ConfigurePwmPeriod stages the period of p.
func (d *Driver) ConfigurePwmPeriod(p PwmChannel, us uint32) {
	d.pwm[p].cfg.stage(func(c *PwmConfig) { c.PeriodUs = us })
}

// ConfigurePwmPulse stages the high time of p.
func (d *Driver) ConfigurePwmPulse(p PwmChannel, us uint32) {
	d.pwm[p].cfg.stage(func(c *PwmConfig) { c.PulseUs = us })
}

// StagedPwm returns the staged PWM record.
func (d *Driver) StagedPwm(p PwmChannel) PwmConfig { return d.pwm[p].cfg.Staged() }

// CommittedPwm returns the PWM record last applied.
func (d *Driver) CommittedPwm(p PwmChannel) PwmConfig { return d.pwm[p].cfg.Committed() }

// PwmRunning reports whether p is enabled.
func (d *Driver) PwmRunning(p PwmChannel) bool { return d.pwm[p].running }

// UpdatePwm applies the staged period and pulse. A stopped output is
// started, a running one is updated in place. The pulse is clamped to the
// period.
func (d *Driver) UpdatePwm(p PwmChannel) error {
	st := &d.pwm[p]
	if st.out == nil {
		return errors.Wrapf(ErrFunctionMismatch, "pwm %d not wired", p)
	}

	c := st.cfg.commit()
	v := c.Value()
	if v.PeriodUs == 0 {
		return errors.Errorf("pwm %d: zero period", p)
	}
	pulse := min(v.PulseUs, v.PeriodUs)
	err := st.out.Configure(time.Duration(v.PeriodUs)*time.Microsecond, time.Duration(pulse)*time.Microsecond)
	if err != nil {
		return errors.Wrapf(err, "pwm %d", p)
	}
	if !st.running {
		if err := st.out.Enable(true); err != nil {
			return errors.Wrapf(err, "pwm %d", p)
		}
		st.running = true
		d.log.Debug("pwm started", zap.Uint8("pwm", uint8(p)), zap.Uint32("period_us", v.PeriodUs))
	}
	st.cfg.settle(c)
	return nil
}

// SuspendPwm stops p. The staged values are kept so UpdatePwm resumes
// with them.
func (d *Driver) SuspendPwm(p PwmChannel) error {
	st := &d.pwm[p]
	if st.out == nil || !st.running {
		return nil
	}
	if err := st.out.Enable(false); err != nil {
		return errors.Wrapf(err, "pwm %d", p)
	}
	st.running = false
	return nil
}
