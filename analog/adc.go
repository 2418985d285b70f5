package analog

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"analogio/ad74412r"
	"analogio/core"
)

// AdcState is the acquisition state of one chip.
type AdcState uint8

const (
	AdcIdle AdcState = iota
	AdcArmed
	AdcConverting
	AdcStopped
	AdcPoweredDown
)

func (s AdcState) String() string {
	switch s {
	case AdcIdle:
		return "idle"
	case AdcArmed:
		return "armed"
	case AdcConverting:
		return "converting"
	case AdcStopped:
		return "stopped"
	case AdcPoweredDown:
		return "powered_down"
	}
	return "unknown"
}

// AdcStart selects a single conversion cycle or continuous conversion.
type AdcStart struct {
	Single bool
}

// AdcStop selects between stopping and powering down the front-ends.
type AdcStop struct {
	PowerDown bool
}

// AdcUpdate makes UpdateAdc wait, bounded, for pending conversions.
type AdcUpdate struct {
	WaitForConversion bool
}

// Unit tags the engineering value of a Reading.
type Unit uint8

const (
	UnitRaw Unit = iota
	UnitMicroVolt
	UnitMicroAmpere
	UnitMilliOhm
)

// Reading is the last acquired ADC result of a channel.
type Reading struct {
	Raw   uint16
	Value int32
	Unit  Unit
	Valid bool
}

type movingAverage struct {
	samples [MaxMovingAverage]uint16
	n, pos  int
}

func (m *movingAverage) add(raw uint16, depth uint8) uint16 {
	if depth <= 1 {
		m.n, m.pos = 0, 0
		return raw
	}
	if m.n > int(depth) {
		m.n, m.pos = 0, 0
	}
	m.samples[m.pos] = raw
	m.pos = (m.pos + 1) % int(depth)
	if m.n < int(depth) {
		m.n++
	}

	var sum uint32
	for _, s := range m.samples[:m.n] {
		sum += uint32(s)
	}
	return uint16(sum / uint32(m.n))
}

// SendAdc commits the staged ADC record: the function selector when the
// gate allows it, then ADC_CONFIG, then DIAG_ASSIGN when the channel has
// a diagnostic.
func (d *Driver) SendAdc(ch Channel) error {
	return d.sendAdc(ch, nil)
}

// sendAdc runs between, when set, after ADC_CONFIG and before DIAG_ASSIGN
// so a caller can slip in a register that sits between the two.
func (d *Driver) sendAdc(ch Channel, between func() error) error {
	if err := d.sendFunctionFirst(ch); err != nil {
		return err
	}

	c := d.ch[ch].adc.commit()
	if err := d.writeReg(ad74412r.RegAdcConfig, encodeAdcConfig(c), ch.Selector()); err != nil {
		return err
	}
	if between != nil {
		if err := between(); err != nil {
			return err
		}
	}

	cs := &d.chips[ch.Chip()]
	bit := uint8(1) << ch.Displacement()
	v := c.Value()
	if v.Diagnostic {
		if err := d.assignDiag(ch, v.DiagSource); err != nil {
			return err
		}
		cs.diag |= bit
		cs.fastDiag = !v.DiagRejection
	} else {
		cs.diag &^= bit
	}
	d.ch[ch].adc.settle(c)
	d.ch[ch].avg = movingAverage{}
	return nil
}

func (d *Driver) assignDiag(ch Channel, source uint8) error {
	cs := &d.chips[ch.Chip()]
	shift := 4 * ch.Displacement()
	assign := cs.diagAssign&^(0xF<<shift) | uint16(source&0xF)<<shift
	if err := d.writeReg(ad74412r.RegDiagAssign, assign, ch.WholeChip()); err != nil {
		return err
	}
	cs.diagAssign = assign
	return nil
}

// AdcEnableChannel adds ch to its chip's conversion mask. It refuses, with
// no register access, when the committed function cannot be sampled. The
// mask reaches the chip on the next StartAdc.
func (d *Driver) AdcEnableChannel(ch Channel) bool {
	f := d.FunctionOf(ch)
	if !f.AdcCompatible() {
		d.log.Debug("adc enable refused", zap.Stringer("ch", ch), zap.Stringer("function", f))
		return false
	}
	d.chips[ch.Chip()].enabled |= 1 << ch.Displacement()
	return true
}

// AdcDisableChannel drops ch from its chip's conversion mask.
func (d *Driver) AdcDisableChannel(ch Channel) {
	cs := &d.chips[ch.Chip()]
	bit := uint8(1) << ch.Displacement()
	cs.enabled &^= bit
	cs.diag &^= bit
	d.ch[ch].adcReading.Valid = false
}

// AdcEnabled reports whether ch is in its chip's conversion mask.
func (d *Driver) AdcEnabled(ch Channel) bool {
	return d.chips[ch.Chip()].enabled&(1<<ch.Displacement()) != 0
}

// AdcStateOf returns the acquisition state of chip.
func (d *Driver) AdcStateOf(chip Chip) AdcState { return d.chips[chip].adcState }

func (cs *chipState) convMask() uint16 {
	mask := uint16(cs.enabled)<<ad74412r.ConvChEnShift | uint16(cs.diag)<<ad74412r.ConvDiagEnShift
	if cs.diag != 0 && cs.fastDiag {
		mask |= ad74412r.ConvRateDiagFastBit
	}
	return mask
}

// StartAdc starts conversion on every chip with enabled channels.
func (d *Driver) StartAdc(opts AdcStart) error {
	var err error
	for chip := Chip(0); chip < NumChips; chip++ {
		err = multierr.Append(err, d.startAdc(chip, opts.Single))
	}
	return err
}

func (d *Driver) startAdc(chip Chip, single bool) error {
	cs := &d.chips[chip]
	mask := cs.convMask()
	if mask == 0 {
		if cs.adcState != AdcConverting {
			return nil
		}
		if err := d.writeDirect(chip, ad74412r.RegAdcConvCtrl, ad74412r.ConvSeqIdle); err != nil {
			return err
		}
		cs.applied, cs.adcState = 0, AdcIdle
		return nil
	}

	continuous := cs.adcState == AdcConverting && !cs.single
	if continuous && !single && mask == cs.applied {
		return nil
	}

	// The channel fields only change with the sequencer idle.
	if continuous || mask != cs.applied {
		if err := d.writeDirect(chip, ad74412r.RegAdcConvCtrl, mask|ad74412r.ConvSeqIdle); err != nil {
			return err
		}
		cs.applied = mask
		cs.adcState = AdcArmed
	}

	seq := uint16(ad74412r.ConvSeqContinuous)
	if single {
		seq = ad74412r.ConvSeqSingle
	}
	if err := d.writeDirect(chip, ad74412r.RegAdcConvCtrl, mask|seq); err != nil {
		return err
	}
	cs.adcState = AdcConverting
	cs.single = single
	d.log.Debug("adc started", zap.Uint8("chip", uint8(chip)), zap.Uint16("mask", mask), zap.Bool("single", single))
	return nil
}

// RestartAdc re-applies the conversion mask of a chip that is converting.
// Idle chips are left alone.
func (d *Driver) RestartAdc(chip Chip) error {
	cs := &d.chips[chip]
	if cs.adcState != AdcConverting {
		return nil
	}
	return d.startAdc(chip, cs.single)
}

// StopAdc stops conversion on both chips.
func (d *Driver) StopAdc(opts AdcStop) error {
	var err error
	for chip := Chip(0); chip < NumChips; chip++ {
		err = multierr.Append(err, d.stopAdc(chip, opts.PowerDown))
	}
	return err
}

func (d *Driver) stopAdc(chip Chip, powerDown bool) error {
	cs := &d.chips[chip]
	seq, state := uint16(ad74412r.ConvSeqIdle), AdcStopped
	if powerDown {
		seq, state = ad74412r.ConvSeqPowerDown, AdcPoweredDown
	}
	if err := d.writeDirect(chip, ad74412r.RegAdcConvCtrl, cs.applied|seq); err != nil {
		return err
	}
	cs.adcState = state
	return nil
}

// pollBusy refreshes LIVE_STATUS of chip and reports ADC_BUSY.
func (d *Driver) pollBusy(chip Chip) (bool, error) {
	live, err := d.readDirect(chip, ad74412r.RegLiveStatus)
	if err != nil {
		return false, err
	}
	d.chips[chip].liveStatus = live
	return live&ad74412r.LiveAdcBusy != 0, nil
}

func (cs *chipState) dataReady() bool {
	return cs.liveStatus&ad74412r.LiveAdcDataRdy != 0
}

// IsConversionFinished reports whether ch is enabled and its chip flagged
// data ready at the last poll.
func (d *Driver) IsConversionFinished(ch Channel) bool {
	cs := &d.chips[ch.Chip()]
	return d.AdcEnabled(ch) && cs.dataReady()
}

// waitReady polls chip until data is ready. Without wait it polls once.
func (d *Driver) waitReady(chip Chip, wait bool) (bool, error) {
	var deadline uint32
	if wait {
		deadline = d.clock.Micros() + core.TimerFromDuration(d.adcWait)
	}
	for {
		if _, err := d.pollBusy(chip); err != nil {
			return false, err
		}
		if d.chips[chip].dataReady() {
			return true, nil
		}
		if !wait || !core.TimerIsBefore(d.clock.Micros(), deadline) {
			return false, nil
		}
	}
}

// UpdateAdc reads the results of every chip that finished a conversion.
// A failed read keeps the previous value of the channel and the returned
// error matches ErrStale.
func (d *Driver) UpdateAdc(opts AdcUpdate) error {
	var errs error
	for chip := Chip(0); chip < NumChips; chip++ {
		errs = multierr.Append(errs, d.updateChipAdc(chip, opts.WaitForConversion))
	}
	if errs != nil {
		return multierr.Append(ErrStale, errs)
	}
	return nil
}

func (d *Driver) updateChipAdc(chip Chip, wait bool) error {
	cs := &d.chips[chip]
	if cs.adcState != AdcConverting || cs.applied == 0 {
		return nil
	}

	ready, err := d.waitReady(chip, wait)
	if err != nil || !ready {
		if wait && err == nil {
			d.log.Debug("adc wait timed out", zap.Uint8("chip", uint8(chip)))
		}
		return err
	}

	var errs error
	for _, ch := range channelsOf(chip) {
		bit := uint8(1) << ch.Displacement()
		if cs.enabled&bit != 0 {
			raw, err := d.readReg(ad74412r.RegAdcResult, ch.Selector())
			if err != nil {
				errs = multierr.Append(errs, err)
			} else {
				d.storeAdc(ch, raw)
			}
		}
		if cs.diag&bit != 0 {
			raw, err := d.readReg(ad74412r.RegDiagResult, ch.Selector())
			if err != nil {
				errs = multierr.Append(errs, err)
			} else {
				d.ch[ch].diagRaw = raw
			}
		}
	}

	// DATA_RDY is write-one-to-clear.
	if err := d.writeDirect(chip, ad74412r.RegLiveStatus, ad74412r.LiveAdcDataRdy); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		cs.liveStatus &^= ad74412r.LiveAdcDataRdy
	}
	if cs.single {
		cs.adcState = AdcIdle
	}
	return errs
}

func (d *Driver) storeAdc(ch Channel, raw uint16) {
	st := &d.ch[ch]
	cfg := st.adc.Committed()
	raw = st.avg.add(raw, cfg.MovingAverage)

	r := Reading{Raw: raw, Valid: true}
	switch f := st.function.Committed().Function; {
	case f == FunctionRtd2Wire:
		r.Value, r.Unit = milliOhms(ad74412r.RtdResistance(raw)), UnitMilliOhm
	case f == FunctionCurrentAdcExt || f == FunctionCurrentAdcLoop ||
		f == FunctionCurrentDac || cfg.Mux == ad74412r.AdcMuxSense100R:
		r.Value, r.Unit = microAmps(ad74412r.AdcCurrent(raw, cfg.Range)), UnitMicroAmpere
	default:
		r.Value, r.Unit = microVolts(ad74412r.AdcVoltage(raw, cfg.Range)), UnitMicroVolt
	}
	st.adcReading = r
}

// AdcValue returns the last acquired reading of ch.
func (d *Driver) AdcValue(ch Channel) Reading { return d.ch[ch].adcReading }

// AdcDiagRaw returns the last diagnostic result of ch.
func (d *Driver) AdcDiagRaw(ch Channel) uint16 { return d.ch[ch].diagRaw }

// UpdateAdcDiagnostics reads the diagnostic result of every
// diagnostic-enabled channel regardless of DATA_RDY.
func (d *Driver) UpdateAdcDiagnostics() error {
	var errs error
	for _, ch := range Channels() {
		if d.chips[ch.Chip()].diag&(1<<ch.Displacement()) == 0 {
			continue
		}
		raw, err := d.readReg(ad74412r.RegDiagResult, ch.Selector())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		d.ch[ch].diagRaw = raw
	}
	if errs != nil {
		return errors.Wrap(multierr.Append(ErrStale, errs), "diagnostics")
	}
	return nil
}
