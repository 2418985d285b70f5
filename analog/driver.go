// Package analog drives the 8-channel analog expansion module: two
// AD74412R front-ends behind a flat channel API, with staged
// configuration, a polled ADC engine, DAC and PWM outputs, alerts and
// the host command set.
//
// A Driver is not safe for concurrent use. Every call is expected from
// the firmware control loop.
package analog

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"

	"analogio/ad74412r"
	"analogio/core"
)

// DefaultAdcWaitTimeout bounds the spin of UpdateAdc when it waits for a
// conversion. One 20 SPS conversion on all four slots fits.
const DefaultAdcWaitTimeout = 250 * time.Millisecond

// Options wires a Driver to its hardware. Bus and Clock are required, the
// lines are optional: without an LDAC line the latch goes through CMD_KEY
// and without a reset line Begin uses the software reset.
type Options struct {
	Bus   core.RegisterBus
	Clock core.Clock

	Ldac  [NumChips]core.OutputPin
	Reset core.OutputPin
	Pwm   [NumPwm]core.PWMOutput
	Leds  []core.OutputPin

	AdcWaitTimeout time.Duration
	ThermalReset   bool
	Logger         *zap.Logger
}

type channelState struct {
	gate bool

	function slot[FunctionConfig]
	adc      slot[AdcConfig]
	dac      slot[DacConfig]
	rtd      slot[RtdConfig]
	din      slot[DinConfig]
	gpo      slot[GpoConfig]

	adcReading Reading
	avg        movingAverage
	diagRaw    uint16
	dacActive  uint16
	rtdReading RtdReading
	dinLevel   bool
	fault      bool
}

type chipState struct {
	alertStatus uint16
	alertMask   uint16
	liveStatus  uint16
	dinComp     uint16
	siliconRev  uint16

	adcState AdcState
	single   bool
	enabled  uint8  // ADC enable, one bit per slot
	diag     uint8  // diagnostic enable, one bit per slot
	fastDiag bool   // diagnostics without 50/60 Hz rejection
	applied  uint16 // channel fields of ADC_CONV_CTRL last written

	diagAssign uint16
	dinThresh  uint16
	gpoPar     uint16
	ldacPhase  bool
}

// Driver owns the shadow state of both chips.
type Driver struct {
	bus   core.RegisterBus
	clock core.Clock
	ldac  [NumChips]core.OutputPin
	reset core.OutputPin
	leds  []core.OutputPin
	log   *zap.Logger

	adcWait      time.Duration
	thermalReset bool

	ch    [NumChannels]channelState
	chips [NumChips]chipState
	pwm   [NumPwm]pwmState

	ledMask uint8
}

// New returns a driver with every channel high impedance, the ADC disabled
// and every function gate open. Nothing is written until Begin.
func New(opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AdcWaitTimeout <= 0 {
		opts.AdcWaitTimeout = DefaultAdcWaitTimeout
	}

	d := &Driver{
		bus:          opts.Bus,
		clock:        opts.Clock,
		ldac:         opts.Ldac,
		reset:        opts.Reset,
		leds:         opts.Leds,
		log:          opts.Logger,
		adcWait:      opts.AdcWaitTimeout,
		thermalReset: opts.ThermalReset,
	}
	for i := range d.ch {
		d.ch[i] = channelState{
			gate:     true,
			function: newSlot(FunctionConfig{Function: FunctionHighImpedance}),
			adc:      newSlot(defaultAdcConfig()),
			dac:      newSlot(DacConfig{}),
			rtd:      newSlot(RtdConfig{CurrentMicroAmps: DefaultRtdCurrent}),
			din:      newSlot(defaultDinConfig()),
			gpo:      newSlot(GpoConfig{Mode: GpoHighZ}),
		}
	}
	for i := range d.pwm {
		d.pwm[i] = pwmState{out: opts.Pwm[i]}
	}
	for i := range d.chips {
		d.chips[i].alertMask = DefaultAlertMask
	}
	return d
}

// Begin resets both chips, reads their silicon revision and commits the
// default configuration of every channel.
func (d *Driver) Begin() error {
	if err := d.resetChips(); err != nil {
		return errors.Wrap(err, "reset")
	}

	for chip := Chip(0); chip < NumChips; chip++ {
		rev, err := d.readDirect(chip, ad74412r.RegSiliconRev)
		if err != nil {
			return errors.Wrapf(err, "chip %d silicon revision", chip)
		}
		d.chips[chip].siliconRev = rev
		d.log.Info("front-end ready", zap.Uint8("chip", uint8(chip)), zap.Uint16("revision", rev))

		if d.thermalReset {
			if err := d.EnableThermalReset(chip); err != nil {
				return err
			}
		}
		if err := d.ConfigureAlertMask(chip, d.chips[chip].alertMask); err != nil {
			return err
		}
	}

	for _, ch := range Channels() {
		d.ch[ch].gate = true
		if err := d.SendFunction(ch); err != nil {
			return errors.Wrapf(err, "%s default function", ch)
		}
	}
	return d.SyncLdac()
}

func (d *Driver) resetChips() error {
	if d.reset != nil {
		if err := d.reset.Set(false); err != nil {
			return err
		}
		d.sleep(100 * time.Microsecond)
		if err := d.reset.Set(true); err != nil {
			return err
		}
		d.sleep(time.Millisecond)
		for i := range d.chips {
			d.chips[i] = chipState{alertMask: DefaultAlertMask}
		}
		return nil
	}

	var err error
	for chip := Chip(0); chip < NumChips; chip++ {
		err = multierr.Append(err, d.SoftwareReset(chip))
	}
	return err
}

// SoftwareReset writes the two-key reset sequence to chip. The shadow
// state of the chip is reset with it.
func (d *Driver) SoftwareReset(chip Chip) error {
	if err := d.writeDirect(chip, ad74412r.RegCmdKey, ad74412r.KeySoftReset1); err != nil {
		return err
	}
	if err := d.writeDirect(chip, ad74412r.RegCmdKey, ad74412r.KeySoftReset2); err != nil {
		return err
	}
	d.chips[chip] = chipState{alertMask: DefaultAlertMask, siliconRev: d.chips[chip].siliconRev}
	d.sleep(time.Millisecond)
	return nil
}

// SiliconRevision returns the revision read at Begin.
func (d *Driver) SiliconRevision(chip Chip) uint16 { return d.chips[chip].siliconRev }

// EnableThermalReset makes chip reset itself on thermal shutdown.
func (d *Driver) EnableThermalReset(chip Chip) error {
	return d.writeDirect(chip, ad74412r.RegThermRst, ad74412r.ThermRstEnable)
}

// Update is the periodic refresh: ADC results, digital levels, alerts and
// LEDs. Failures do not stop the remaining steps.
func (d *Driver) Update() error {
	err := d.UpdateAdc(AdcUpdate{})
	err = multierr.Append(err, d.UpdateLiveStatus())
	for chip := Chip(0); chip < NumChips; chip++ {
		err = multierr.Append(err, d.UpdateAlertStatus(chip))
	}
	return multierr.Append(err, d.pushLeds())
}

// ConfigureLeds stages the status LED bitmask. It reaches the lines on
// the next Update.
func (d *Driver) ConfigureLeds(mask uint8) { d.ledMask = mask }

// Leds returns the staged LED bitmask.
func (d *Driver) Leds() uint8 { return d.ledMask }

func (d *Driver) pushLeds() error {
	var err error
	for i, led := range d.leds {
		if led == nil {
			continue
		}
		err = multierr.Append(err, led.Set(d.ledMask&(1<<i) != 0))
	}
	return err
}

// sleep spins on the driver clock. The wait is short and bounded.
func (d *Driver) sleep(dt time.Duration) {
	if d.clock == nil {
		return
	}
	end := d.clock.Micros() + core.TimerFromDuration(dt)
	for core.TimerIsBefore(d.clock.Micros(), end) {
	}
}

func microVolts(v physic.ElectricPotential) int32 {
	return clamp32(int64(v / physic.MicroVolt))
}

func microAmps(i physic.ElectricCurrent) int32 {
	return clamp32(int64(i / physic.MicroAmpere))
}

func clamp32(v int64) int32 {
	switch {
	case v > 1<<31-1:
		return 1<<31 - 1
	case v < -1<<31:
		return -1 << 31
	}
	return int32(v)
}
