package analog

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"analogio/ad74412r"
	"analogio/core"
	"analogio/sim"
)

func newTestDriver(t *testing.T, opts Options) (*Driver, *sim.Chips) {
	t.Helper()
	chips := sim.NewChips()
	opts.Bus = chips
	if opts.Clock == nil {
		opts.Clock = sim.NewClock(10)
	}
	d := New(opts)
	require.NoError(t, d.Begin())
	chips.ClearLog()
	return d, chips
}

func write(chip, addr uint8, value uint16) sim.Access {
	return sim.Access{Chip: chip, Addr: addr, Value: value, Write: true}
}

func convWrites(chips *sim.Chips, chip uint8) []uint16 {
	var out []uint16
	for _, a := range chips.Writes() {
		if a.Chip == chip && a.Addr == ad74412r.RegAdcConvCtrl {
			out = append(out, a.Value)
		}
	}
	return out
}

func TestBeginDefaults(t *testing.T) {
	chips := sim.NewChips()
	d := New(Options{Bus: chips, Clock: sim.NewClock(10)})
	require.NoError(t, d.Begin())

	for chip := Chip(0); chip < NumChips; chip++ {
		assert.Equal(t, uint16(sim.SiliconRevision), d.SiliconRevision(chip))
		assert.Equal(t, AdcIdle, d.AdcStateOf(chip))
		assert.Equal(t, ^DefaultAlertMask, chips.Register(uint8(chip), ad74412r.RegAlertMask))
	}
	for _, ch := range Channels() {
		assert.Equal(t, FunctionHighImpedance, d.FunctionOf(ch))
		assert.True(t, d.FunctionAllowed(ch))
		assert.False(t, d.AdcEnabled(ch))
	}
}

func TestBeginHardwareReset(t *testing.T) {
	reset := &sim.Pin{}
	chips := sim.NewChips()
	d := New(Options{Bus: chips, Clock: sim.NewClock(10), Reset: reset})
	require.NoError(t, d.Begin())

	assert.Equal(t, []bool{false, true}, reset.Levels())
	for _, a := range chips.Writes() {
		assert.NotEqual(t, uint8(ad74412r.RegCmdKey), a.Addr)
	}
}

func TestBeginFailsOnBus(t *testing.T) {
	chips := sim.NewChips()
	chips.Fail = func(a sim.Access) bool { return a.Addr == ad74412r.RegSiliconRev }
	d := New(Options{Bus: chips, Clock: sim.NewClock(10)})

	err := d.Begin()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, sim.ErrInjected))
}

func TestConfigureWithoutSend(t *testing.T) {
	d, chips := newTestDriver(t, Options{Pwm: [NumPwm]core.PWMOutput{&sim.PWM{}}})
	ch := Channel(3)

	d.ConfigureFunction(ch, FunctionVoltageAdc)
	d.ConfigureAdc(ch, AdcConfig{Mux: 2, Range: ad74412r.RangePm10V})
	d.ConfigureDac(ch, DacConfig{CurrentLimit: true, Target: 100})
	d.ConfigureDacValue(ch, 200)
	d.ConfigureDin(ch, DinConfig{Threshold: 7})
	d.ConfigureGpo(ch, GpoConfig{Mode: GpoLogic, Level: true})
	d.ConfigureRtd(0, true, 500)
	d.ConfigurePwmPeriod(0, 1000)
	d.ConfigurePwmPulse(0, 250)
	d.ConfigureLeds(0xFF)

	assert.Empty(t, chips.Writes())

	assert.Equal(t, uint8(2), d.StagedAdc(ch).Mux)
	assert.Equal(t, uint8(0), d.CommittedAdc(ch).Mux)
	assert.Equal(t, uint16(200), d.StagedDac(ch).Target)
	assert.Equal(t, uint16(0), d.CommittedDac(ch).Target)
	assert.Equal(t, FunctionHighImpedance, d.FunctionOf(ch))
	assert.Equal(t, PwmConfig{PeriodUs: 1000, PulseUs: 250}, d.StagedPwm(0))
	assert.Equal(t, PwmConfig{}, d.CommittedPwm(0))
	assert.False(t, d.PwmRunning(0))
}

func TestSendAdcWritesInAddressOrder(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	ch := Channel(3) // chip 1, slot 1

	d.ConfigureFunction(ch, FunctionVoltageAdc)
	cfg := defaultAdcConfig()
	cfg.Mux = ad74412r.AdcMuxSenseToGnd
	cfg.Range = ad74412r.RangePm10V
	cfg.Diagnostic = true
	cfg.DiagSource = ad74412r.DiagSenseP
	d.ConfigureAdc(ch, cfg)
	require.NoError(t, d.SendAdc(ch))

	assert.Equal(t, []sim.Access{
		write(1, ad74412r.RegChFuncSetup+1, ad74412r.FuncVoltageIn),
		write(1, ad74412r.RegAdcConfig+1, 0x82),
		write(1, ad74412r.RegDiagAssign, ad74412r.DiagSenseP<<4),
	}, chips.Writes())

	assert.Equal(t, FunctionVoltageAdc, d.FunctionOf(ch))
	assert.Equal(t, cfg, d.CommittedAdc(ch))
}

func TestSendDacWritesInAddressOrder(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	ch := Channel(6) // chip 0, slot 2

	d.ConfigureFunction(ch, FunctionVoltageDac)
	d.ConfigureDac(ch, DacConfig{CurrentLimit: true, ResetEnabled: true, ResetValue: 0x123})
	d.ConfigureDacUseSlew(ch, 2, 1)
	require.NoError(t, d.SendDac(ch))

	out := uint16(ad74412r.OutCurrentLimitBit | ad74412r.OutClearEnableBit |
		ad74412r.OutSlewLinear<<ad74412r.OutSlewEnableShift |
		2<<ad74412r.OutSlewRateShift | 1<<ad74412r.OutSlewStepShift)
	assert.Equal(t, []sim.Access{
		write(0, ad74412r.RegChFuncSetup+2, ad74412r.FuncVoltageOut),
		write(0, ad74412r.RegOutputConfig+2, out),
		write(0, ad74412r.RegDacClrCode+2, 0x123),
	}, chips.Writes())
}

func TestSendDinWritesInAddressOrder(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	ch := Channel(0) // chip 0, slot 1

	d.ConfigureFunction(ch, FunctionDigitalInLogic)
	d.ConfigureDin(ch, DinConfig{CompEnable: true, Filter: true, Threshold: 40, Sink: 3, DebounceTime: 9})
	assert.Equal(t, uint8(ad74412r.DinCompThreshMask), d.StagedDin(ch).Threshold)
	require.NoError(t, d.SendDin(ch))

	writes := chips.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, write(0, ad74412r.RegChFuncSetup+1, ad74412r.FuncDigitalInLogic), writes[0])
	assert.Equal(t, write(0, ad74412r.RegDinConfig+1,
		ad74412r.DinCompEnableBit|ad74412r.DinFilterBit|3<<ad74412r.DinSinkShift|9), writes[1])
	assert.Equal(t, write(0, ad74412r.RegDinThresh,
		ad74412r.DinThreshModeBit|ad74412r.DinCompThreshMask<<ad74412r.DinCompThreshShift), writes[2])

	// the shared threshold is not rewritten when unchanged
	chips.ClearLog()
	require.NoError(t, d.SendDin(ch))
	assert.Len(t, chips.Writes(), 2)
}

func TestFunctionGate(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	ch := Channel(5)

	d.BlockFunction(ch)
	d.ConfigureFunction(ch, FunctionVoltageAdc)
	err := d.SendFunction(ch)
	assert.True(t, errors.Is(err, ErrGateBlocked))
	assert.Empty(t, chips.Writes())
	assert.Equal(t, FunctionHighImpedance, d.FunctionOf(ch))

	// family commits go through without the selector
	require.NoError(t, d.SendAdc(ch))
	assert.Equal(t, []sim.Access{
		write(1, ad74412r.RegAdcConfig+3, encodeAdcConfig(Committed[AdcConfig]{d.StagedAdc(ch)})),
	}, chips.Writes())

	d.AllowFunction(ch)
	require.NoError(t, d.SendFunction(ch))
	assert.Equal(t, FunctionVoltageAdc, d.FunctionOf(ch))
}

func TestRtdThreeWireGating(t *testing.T) {
	d, _ := newTestDriver(t, Options{})

	d.ConfigureRtd(2, true, 1000)
	assert.False(t, d.StagedRtd(2).ThreeWire)

	d.ConfigureRtd(0, true, 1000)
	assert.True(t, d.StagedRtd(0).ThreeWire)

	d.ConfigureRtd(1, true, 1_000_000)
	assert.Equal(t, uint32(25000), d.StagedRtd(1).CurrentMicroAmps)
}

func TestSendRtdThreeWireWritesInAddressOrder(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	ch := Channel(0) // chip 0, slot 1

	d.ConfigureRtd(ch, true, 1000)
	require.NoError(t, d.SendRtd(ch))

	writes := chips.Writes()
	var addrs []uint8
	for _, a := range writes {
		assert.Equal(t, uint8(0), a.Chip)
		addrs = append(addrs, a.Addr)
	}
	assert.Equal(t, []uint8{
		ad74412r.RegChFuncSetup + 1,
		ad74412r.RegAdcConfig + 1,
		ad74412r.RegDacCode + 1,
		ad74412r.RegDiagAssign,
	}, addrs)
	assert.IsIncreasing(t, addrs)

	require.Len(t, writes, 4)
	assert.Equal(t, ad74412r.DacCodeForCurrent(1000*physic.MicroAmpere), writes[2].Value)
	assert.Equal(t, FunctionRtd3Wire, d.FunctionOf(ch))
	assert.True(t, d.CommittedAdc(ch).Diagnostic)
}

func TestDacSlewExclusive(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	ch := Channel(2)

	d.ConfigureFunction(ch, FunctionVoltageDac)
	d.ConfigureDacUseSlew(ch, 3, 3)
	d.ConfigureDacDisableSlew(ch)

	staged := d.StagedDac(ch)
	assert.False(t, staged.SlewEnabled)
	assert.Zero(t, staged.SlewRate)
	assert.Zero(t, staged.SlewStep)

	require.NoError(t, d.SendDac(ch))
	assert.Contains(t, chips.Writes(), write(1, ad74412r.RegOutputConfig, 0))

	d.ConfigureDac(ch, DacConfig{SlewRate: 2, SlewStep: 2})
	assert.Zero(t, d.StagedDac(ch).SlewRate)
}

func TestAdcEnableGating(t *testing.T) {
	d, chips := newTestDriver(t, Options{})

	assert.False(t, d.AdcEnableChannel(4))

	d.ConfigureFunction(4, FunctionDigitalInLogic)
	require.NoError(t, d.SendFunction(4))
	chips.ClearLog()
	assert.False(t, d.AdcEnableChannel(4))
	require.NoError(t, d.StartAdc(AdcStart{}))
	assert.Empty(t, chips.Writes())
	assert.False(t, d.AdcEnabled(4))

	// staged but not sent does not count
	d.ConfigureFunction(4, FunctionVoltageAdc)
	assert.False(t, d.AdcEnableChannel(4))

	require.NoError(t, d.SendFunction(4))
	assert.True(t, d.AdcEnableChannel(4))

	for _, f := range []Function{FunctionCurrentDac, FunctionRtd2Wire, FunctionCurrentAdcLoop} {
		d.ConfigureFunction(5, f)
		require.NoError(t, d.SendFunction(5))
		assert.True(t, d.AdcEnableChannel(5), f.String())
	}
}

func TestStartAdcSuppressesUnchangedMask(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureFunction(2, FunctionVoltageAdc)
	require.NoError(t, d.SendFunction(2))
	require.True(t, d.AdcEnableChannel(2))
	chips.ClearLog()

	require.NoError(t, d.StartAdc(AdcStart{}))
	require.NoError(t, d.StartAdc(AdcStart{}))
	assert.Equal(t, []uint16{0x1, 0x1 | ad74412r.ConvSeqContinuous}, convWrites(chips, 1))
	assert.Empty(t, convWrites(chips, 0))
	assert.Equal(t, AdcConverting, d.AdcStateOf(1))

	// a new channel rewrites the mask with the sequencer idle first
	d.ConfigureFunction(3, FunctionVoltageAdc)
	require.NoError(t, d.SendFunction(3))
	require.True(t, d.AdcEnableChannel(3))
	chips.ClearLog()
	require.NoError(t, d.StartAdc(AdcStart{}))
	assert.Equal(t, []uint16{0x3, 0x3 | ad74412r.ConvSeqContinuous}, convWrites(chips, 1))
}

func TestStartAdcSingleWritesMaskOnce(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureFunction(1, FunctionVoltageAdc)
	require.NoError(t, d.SendFunction(1))
	require.True(t, d.AdcEnableChannel(1))
	chips.ClearLog()

	require.NoError(t, d.StartAdc(AdcStart{Single: true}))
	require.NoError(t, d.StartAdc(AdcStart{Single: true}))

	var idle int
	for _, v := range convWrites(chips, 0) {
		if v&ad74412r.ConvSeqMask == ad74412r.ConvSeqIdle {
			idle++
		}
	}
	assert.Equal(t, 1, idle)
	assert.Len(t, convWrites(chips, 0), 3)
}

func TestStopAdc(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureFunction(1, FunctionVoltageAdc)
	require.NoError(t, d.SendFunction(1))
	require.True(t, d.AdcEnableChannel(1))
	require.NoError(t, d.StartAdc(AdcStart{}))

	require.NoError(t, d.StopAdc(AdcStop{PowerDown: true}))
	assert.Equal(t, AdcPoweredDown, d.AdcStateOf(0))
	assert.Equal(t, uint16(0x1|ad74412r.ConvSeqPowerDown), chips.Register(0, ad74412r.RegAdcConvCtrl))

	require.NoError(t, d.StartAdc(AdcStart{}))
	assert.Equal(t, AdcConverting, d.AdcStateOf(0))
	require.NoError(t, d.StopAdc(AdcStop{}))
	assert.Equal(t, AdcStopped, d.AdcStateOf(0))
}

func setupVoltageAdc(t *testing.T, d *Driver, ch Channel, rangeCode uint8) {
	t.Helper()
	d.ConfigureFunction(ch, FunctionVoltageAdc)
	cfg := defaultAdcConfig()
	cfg.Range = rangeCode
	d.ConfigureAdc(ch, cfg)
	require.NoError(t, d.SendAdc(ch))
	require.True(t, d.AdcEnableChannel(ch))
	require.NoError(t, d.StartAdc(AdcStart{}))
}

func TestUpdateAdcConverts(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	chips.BusyPolls = 3
	setupVoltageAdc(t, d, 3, ad74412r.RangePm10V)
	chips.SetAdcResult(1, 1, 0xC000)

	require.NoError(t, d.UpdateAdc(AdcUpdate{WaitForConversion: true}))
	r := d.AdcValue(3)
	assert.True(t, r.Valid)
	assert.Equal(t, uint16(0xC000), r.Raw)
	assert.Equal(t, UnitMicroVolt, r.Unit)
	assert.Equal(t, int32(5000228), r.Value)

	// DATA_RDY was cleared
	assert.Zero(t, chips.Register(1, ad74412r.RegLiveStatus)&ad74412r.LiveAdcDataRdy)
	assert.False(t, d.IsConversionFinished(3))
}

func TestUpdateAdcWithoutWait(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	chips.BusyPolls = 5
	setupVoltageAdc(t, d, 2, ad74412r.Range0To10V)
	chips.SetAdcResult(1, 0, 0x8000)

	require.NoError(t, d.UpdateAdc(AdcUpdate{}))
	assert.False(t, d.AdcValue(2).Valid)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.UpdateAdc(AdcUpdate{}))
	}
	assert.True(t, d.AdcValue(2).Valid)
}

func TestUpdateAdcCurrent(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureFunction(7, FunctionCurrentAdcExt)
	cfg := defaultAdcConfig()
	cfg.Mux = ad74412r.AdcMuxSense100R
	cfg.Range = ad74412r.Range0To2V5Ext
	d.ConfigureAdc(7, cfg)
	require.NoError(t, d.SendAdc(7))
	require.True(t, d.AdcEnableChannel(7))
	require.NoError(t, d.StartAdc(AdcStart{}))
	chips.SetAdcResult(0, 3, ad74412r.AdcMax)

	require.NoError(t, d.UpdateAdc(AdcUpdate{WaitForConversion: true}))
	r := d.AdcValue(7)
	assert.Equal(t, UnitMicroAmpere, r.Unit)
	assert.Equal(t, int32(25000), r.Value)
}

func TestUpdateAdcKeepsValueOnReadFailure(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	setupVoltageAdc(t, d, 4, ad74412r.Range0To10V)
	chips.SetAdcResult(1, 2, 0x1000)
	require.NoError(t, d.UpdateAdc(AdcUpdate{WaitForConversion: true}))
	before := d.AdcValue(4)

	chips.SetAdcResult(1, 2, 0x2000)
	chips.Fail = func(a sim.Access) bool { return !a.Write && a.Addr == ad74412r.RegAdcResult+2 }
	err := d.UpdateAdc(AdcUpdate{WaitForConversion: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStale))
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, before, d.AdcValue(4))
}

func TestMovingAverage(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureFunction(2, FunctionVoltageAdc)
	cfg := defaultAdcConfig()
	cfg.MovingAverage = 4
	d.ConfigureAdc(2, cfg)
	require.NoError(t, d.SendAdc(2))
	require.True(t, d.AdcEnableChannel(2))
	require.NoError(t, d.StartAdc(AdcStart{}))

	for _, raw := range []uint16{100, 200, 300, 400, 500} {
		chips.SetAdcResult(1, 0, raw)
		require.NoError(t, d.UpdateAdc(AdcUpdate{WaitForConversion: true}))
	}
	// last four samples
	assert.Equal(t, uint16(350), d.AdcValue(2).Raw)
}

func TestAdcDiagnostics(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureFunction(0, FunctionVoltageAdc)
	cfg := defaultAdcConfig()
	cfg.Diagnostic = true
	cfg.DiagRejection = false
	d.ConfigureAdc(0, cfg)
	require.NoError(t, d.SendAdc(0))
	require.True(t, d.AdcEnableChannel(0))
	chips.ClearLog()
	require.NoError(t, d.StartAdc(AdcStart{}))

	mask := uint16(1<<1 | 1<<(ad74412r.ConvDiagEnShift+1) | ad74412r.ConvRateDiagFastBit)
	assert.Equal(t, []uint16{mask, mask | ad74412r.ConvSeqContinuous}, convWrites(chips, 0))

	chips.SetDiagResult(0, 1, 0x4242)
	require.NoError(t, d.UpdateAdcDiagnostics())
	assert.Equal(t, uint16(0x4242), d.AdcDiagRaw(0))
}

func setupDac(t *testing.T, d *Driver, ch Channel, resetCode uint16) {
	t.Helper()
	d.ConfigureFunction(ch, FunctionVoltageDac)
	d.ConfigureDac(ch, DacConfig{ResetEnabled: resetCode != 0, ResetValue: resetCode})
	require.NoError(t, d.SendDac(ch))
}

func TestUpdateDacValueTogglesLdac(t *testing.T) {
	chips := sim.NewChips()
	ldac := [NumChips]*sim.Pin{sim.LdacPin(chips, 0), sim.LdacPin(chips, 1)}
	d := New(Options{Bus: chips, Clock: sim.NewClock(10), Ldac: [NumChips]core.OutputPin{ldac[0], ldac[1]}})
	require.NoError(t, d.Begin())
	setupDac(t, d, 6, 0)

	d.ConfigureDacValue(6, 0x0800)
	require.NoError(t, d.UpdateDacValue(6, DacUpdate{ToggleLatch: true}))
	assert.Equal(t, uint16(0x0800), chips.Register(0, ad74412r.RegDacActive+2))

	d.ConfigureDacValue(6, 0x0900)
	require.NoError(t, d.UpdateDacValue(6, DacUpdate{ToggleLatch: true}))
	assert.Equal(t, uint16(0x0900), chips.Register(0, ad74412r.RegDacActive+2))

	// low from SyncLdac, then alternating edges
	assert.Equal(t, []bool{false, true, false}, ldac[0].Levels())
	assert.Equal(t, []bool{false}, ldac[1].Levels())
	assert.Equal(t, uint16(0x0900), d.CommittedDac(6).Target)
}

func TestUpdateDacValueLatchKey(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	setupDac(t, d, 2, 0)
	chips.ClearLog()

	d.ConfigureDacValue(2, 0x1FFF+5)
	require.NoError(t, d.UpdateDacValue(2, DacUpdate{}))
	assert.Equal(t, []sim.Access{write(1, ad74412r.RegDacCode, ad74412r.DacMax)}, chips.Writes())
	assert.Zero(t, chips.Register(1, ad74412r.RegDacActive))

	require.NoError(t, d.LatchDac(1))
	assert.Equal(t, write(1, ad74412r.RegCmdKey, ad74412r.KeyLdac), chips.Writes()[1])
	assert.Equal(t, uint16(ad74412r.DacMax), chips.Register(1, ad74412r.RegDacActive))

	require.NoError(t, d.UpdateDacPresentValue(2))
	assert.Equal(t, uint16(ad74412r.DacMax), d.DacPresentValue(2))
}

func TestUpdateDacValueNeedsDacFunction(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureDacValue(1, 10)
	err := d.UpdateDacValue(1, DacUpdate{ToggleLatch: true})
	assert.True(t, errors.Is(err, ErrFunctionMismatch))
	assert.True(t, errors.Is(d.UpdateDacPresentValue(1), ErrFunctionMismatch))
	assert.Empty(t, chips.Writes())
}

func TestResetDacValueIsChipWide(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	setupDac(t, d, 0, 0x0100) // chip 0
	setupDac(t, d, 6, 0x0200) // chip 0
	setupDac(t, d, 7, 0)      // chip 0, no reset value
	setupDac(t, d, 2, 0x0300) // chip 1
	chips.ClearLog()

	reset, err := d.ResetDacValue(6)
	require.NoError(t, err)
	assert.Equal(t, []Channel{0, 6}, reset)

	assert.Equal(t, []sim.Access{
		write(0, ad74412r.RegDacCode+1, 0x0100),
		write(0, ad74412r.RegDacCode+2, 0x0200),
		write(0, ad74412r.RegCmdKey, ad74412r.KeyLdac),
	}, chips.Writes())
	assert.Equal(t, uint16(0x0100), d.CommittedDac(0).Target)
	assert.Equal(t, uint16(0x0100), d.StagedDac(0).Target)
}

func TestDacCodeFor(t *testing.T) {
	assert.Equal(t, ad74412r.DacCodeForVoltage(5*physic.Volt), DacCodeFor(FunctionVoltageDac, 5000))
	assert.Equal(t, ad74412r.DacCodeForCurrent(12*physic.MilliAmpere), DacCodeFor(FunctionCurrentDac, 12000))
}

func TestPwmSuspendResume(t *testing.T) {
	out := &sim.PWM{}
	d, _ := newTestDriver(t, Options{Pwm: [NumPwm]core.PWMOutput{out}})

	d.ConfigurePwmPeriod(0, 1000)
	d.ConfigurePwmPulse(0, 1500)
	require.NoError(t, d.UpdatePwm(0))
	assert.True(t, out.Enabled)
	assert.Equal(t, 1000*time.Microsecond, out.Period)
	assert.Equal(t, 1000*time.Microsecond, out.Pulse)

	d.ConfigurePwmPulse(0, 250)
	require.NoError(t, d.UpdatePwm(0))
	assert.Equal(t, 250*time.Microsecond, out.Pulse)
	assert.Equal(t, 2, out.Updates)

	require.NoError(t, d.SuspendPwm(0))
	assert.False(t, out.Enabled)
	assert.False(t, d.PwmRunning(0))
	assert.Equal(t, PwmConfig{PeriodUs: 1000, PulseUs: 250}, d.StagedPwm(0))

	require.NoError(t, d.UpdatePwm(0))
	assert.True(t, out.Enabled)
	assert.Equal(t, 250*time.Microsecond, out.Pulse)

	assert.True(t, errors.Is(d.UpdatePwm(1), ErrFunctionMismatch))
	_, err := NewPwmChannel(4)
	assert.True(t, errors.Is(err, ErrInvalidChannel))
}

func TestAlertStatusHonoursMask(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	require.NoError(t, d.ConfigureAlertMask(0, ad74412r.AlertAdcSatErr))
	assert.Equal(t, ^uint16(ad74412r.AlertAdcSatErr), chips.Register(0, ad74412r.RegAlertMask))

	vi := uint16(1) << ad74412r.AlertViErrShift // slot 0 is ch1
	chips.RaiseAlert(0, ad74412r.AlertAdcSatErr|vi)

	require.NoError(t, d.UpdateAlertStatus(0))
	assert.Equal(t, uint16(ad74412r.AlertAdcSatErr), d.AlertStatus(0))
	assert.False(t, d.ChannelFault(1))
	// only the watched bit was cleared
	assert.Equal(t, vi, chips.Register(0, ad74412r.RegAlertStatus)&^ad74412r.AlertResetOccurred)

	require.NoError(t, d.ConfigureAlertMask(0, 0xFFFF))
	require.NoError(t, d.UpdateAlertStatus(0))
	assert.True(t, d.ChannelFault(1))
	assert.False(t, d.ChannelFault(0))
	assert.Zero(t, chips.Register(0, ad74412r.RegAlertStatus))
}

func TestLiveStatusDigitalInputs(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	for _, ch := range []Channel{0, 7, 5} {
		d.ConfigureFunction(ch, FunctionDigitalInLogic)
		d.ConfigureDin(ch, defaultDinConfig())
		require.NoError(t, d.SendDin(ch))
	}
	// ch0 and ch7 on chip 0, ch1 is not an input
	chips.SetComparators(0, 1<<1|1<<3|1<<0)
	chips.SetComparators(1, 0)

	require.NoError(t, d.UpdateLiveStatus())
	assert.Equal(t, uint8(1<<0|1<<7), d.DigitalInputs())
	assert.True(t, d.DinValue(0))
	assert.False(t, d.DinValue(5))
}

func TestGpo(t *testing.T) {
	d, chips := newTestDriver(t, Options{})

	require.NoError(t, d.DigitalWrite(4, true))
	assert.Equal(t, []sim.Access{write(1, ad74412r.RegGpoConfig+2, ad74412r.GpoSelLogic|ad74412r.GpoDataBit)}, chips.Writes())
	assert.Equal(t, uint8(1<<4), d.DigitalOutputs())

	assert.True(t, errors.Is(d.DigitalParallelWrite(0, 0xFF), ErrFunctionMismatch))

	for _, ch := range []Channel{1, 6} {
		d.ConfigureGpo(ch, GpoConfig{Mode: GpoParallel})
		require.NoError(t, d.UpdateGpo(ch))
	}
	chips.ClearLog()
	require.NoError(t, d.DigitalParallelWrite(0, 1<<6|1<<0))
	assert.Equal(t, []sim.Access{write(0, ad74412r.RegGpoParData, 1<<2)}, chips.Writes())
	assert.Equal(t, uint8(1<<4|1<<6), d.DigitalOutputs())

	d.ConfigureGpo(3, GpoConfig{Mode: 9})
	assert.Equal(t, uint8(GpoHighZ), d.StagedGpo(3).Mode)
}

func TestRtdTwoWire(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureRtd(4, false, 0)
	require.NoError(t, d.SendRtd(4))
	assert.Equal(t, FunctionRtd2Wire, d.FunctionOf(4))
	assert.Equal(t, uint16(ad74412r.FuncResistance), chips.Register(1, ad74412r.RegChFuncSetup+2))

	require.True(t, d.AdcEnableChannel(4))
	require.NoError(t, d.StartAdc(AdcStart{}))
	// 100 ohm against the 2100 ohm reference
	chips.SetAdcResult(1, 2, 2979)
	require.NoError(t, d.UpdateAdc(AdcUpdate{WaitForConversion: true}))
	assert.Equal(t, UnitMilliOhm, d.AdcValue(4).Unit)

	require.NoError(t, d.UpdateRtd(4))
	r := d.RtdValue(4)
	assert.InDelta(t, 100, float64(r.Resistance)/float64(physic.Ohm), 0.1)
	assert.InDelta(t, 0, float64(r.Temperature-physic.ZeroCelsius)/float64(physic.Celsius), 0.5)
}

func TestRtdThreeWire(t *testing.T) {
	d, chips := newTestDriver(t, Options{})
	d.ConfigureRtd(1, true, 1000)
	require.NoError(t, d.SendRtd(1))
	assert.Equal(t, FunctionRtd3Wire, d.FunctionOf(1))
	assert.Equal(t, uint16(ad74412r.FuncCurrentOut), chips.Register(0, ad74412r.RegChFuncSetup))
	assert.Equal(t, ad74412r.DacCodeForCurrent(physic.MilliAmpere), chips.Register(0, ad74412r.RegDacCode))

	require.True(t, d.AdcEnableChannel(1))
	require.NoError(t, d.StartAdc(AdcStart{}))

	// 1 mA through 110 ohm of RTD plus two 5 ohm leads: 120 mV at the
	// terminal, 5 mV across the return lead
	chips.SetAdcResult(0, 0, uint16(120*ad74412r.AdcMax/10000))
	chips.SetDiagResult(0, 0, uint16(5*ad74412r.AdcMax/2500))
	require.NoError(t, d.UpdateAdc(AdcUpdate{WaitForConversion: true}))

	require.NoError(t, d.UpdateRtd(1))
	assert.InDelta(t, 110, float64(d.RtdValue(1).Resistance)/float64(physic.Ohm), 1)

	assert.True(t, errors.Is(d.UpdateRtd(2), ErrFunctionMismatch))
}

func TestUpdateDrivesLeds(t *testing.T) {
	leds := []*sim.Pin{{}, {}, {}}
	d, _ := newTestDriver(t, Options{Leds: []core.OutputPin{leds[0], leds[1], leds[2]}})

	d.ConfigureLeds(0b101)
	require.NoError(t, d.Update())
	assert.True(t, leds[0].Level())
	assert.False(t, leds[1].Level())
	assert.True(t, leds[2].Level())
}
