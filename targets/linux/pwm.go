//go:build linux

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// sysfsPWM drives one channel of a /sys/class/pwm chip.
type sysfsPWM struct {
	dir string // <chip>/pwm<n>

	period time.Duration
}

// openPWM exports channel n of chip unless it already is.
func openPWM(chip string, n int) (*sysfsPWM, error) {
	dir := filepath.Join(chip, "pwm"+strconv.Itoa(n))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := writeAttr(filepath.Join(chip, "export"), int64(n)); err != nil {
			return nil, err
		}
	}
	return &sysfsPWM{dir: dir}, nil
}

func writeAttr(path string, v int64) error {
	err := os.WriteFile(path, []byte(strconv.FormatInt(v, 10)), 0o644)
	return errors.Wrapf(err, "write %s", path)
}

// Configure writes period and duty cycle in the order the kernel accepts:
// the duty cycle may never exceed the period.
func (p *sysfsPWM) Configure(period, pulse time.Duration) error {
	if pulse > period {
		pulse = period
	}
	duty := filepath.Join(p.dir, "duty_cycle")
	per := filepath.Join(p.dir, "period")
	if period < p.period {
		if err := writeAttr(duty, pulse.Nanoseconds()); err != nil {
			return err
		}
		if err := writeAttr(per, period.Nanoseconds()); err != nil {
			return err
		}
	} else {
		if err := writeAttr(per, period.Nanoseconds()); err != nil {
			return err
		}
		if err := writeAttr(duty, pulse.Nanoseconds()); err != nil {
			return err
		}
	}
	p.period = period
	return nil
}

func (p *sysfsPWM) Enable(on bool) error {
	v := int64(0)
	if on {
		v = 1
	}
	return writeAttr(filepath.Join(p.dir, "enable"), v)
}
