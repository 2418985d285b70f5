package analog

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"

	"analogio/ad74412r"
	"analogio/core"
	"analogio/protocol"
)

type handlerFunc func(m *Module, cmd *core.Command, data *[]byte) error

type command struct {
	name    string
	format  string
	handler handlerFunc
}

var commands = []command{
	{"setup_rtd_channel", "ch=%c three_wire=%c current_ua=%u", (*Module).setupRtd},
	{"setup_adc_channel", "ch=%c type=%c mux=%c range=%c pull_down=%c rejection=%c diagnostic=%c moving_average=%c add=%c", (*Module).setupAdc},
	{"setup_dac_channel", "ch=%c type=%c limit_current=%c enable_slew=%c slew_rate=%c slew_step=%c use_reset=%c reset_value=%hu", (*Module).setupDac},
	{"setup_di_channel", "ch=%c filter_comp=%c invert_comp=%c enable_comp=%c debounce_simple=%c scale_comp=%c threshold=%c sink=%c debounce_time=%c", (*Module).setupDi},
	{"setup_high_impedance_channel", "ch=%c", (*Module).setupHighImpedance},
	{"get_adc_value", "ch=%c", (*Module).getAdc},
	{"get_all_adc_values", "", (*Module).getAllAdc},
	{"set_dac_value", "ch=%c value=%hu update=%c", (*Module).setDac},
	{"set_all_dac_values", "values=%*s", (*Module).setAllDac},
	{"get_di_value", "", (*Module).getDi},
	{"set_pwm_value", "ch=%c period_us=%u pulse_us=%u", (*Module).setPwm},
	{"get_rtd_value", "ch=%c", (*Module).getRtd},
	{"set_rtd_update_rate", "rate_ms=%hu", (*Module).setRtdRate},
	{"set_led", "mask=%c", (*Module).setLed},
	{"set_gpo", "ch=%c mode=%c level=%c", (*Module).setGpo},
	{"get_dac_value", "ch=%c", (*Module).getDac},
	{"get_alert_status", "chip=%c", (*Module).getAlert},
	{"get_version", "", (*Module).getVersion},
}

var responses = []core.Message{
	{Name: "command_status", Format: "cmd=%hu ok=%c", Response: true},
	{Name: "adc_value", Format: "ch=%c raw=%hu value=%i unit=%c", Response: true},
	{Name: "all_adc_values", Format: "values=%*s", Response: true},
	{Name: "di_value", Format: "mask=%c", Response: true},
	{Name: "rtd_value", Format: "ch=%c milliohm=%u centi_celsius=%i", Response: true},
	{Name: "dac_value", Format: "ch=%c code=%hu", Response: true},
	{Name: "alert_status", Format: "chip=%c status=%hu", Response: true},
	{Name: "version", Format: "major=%c minor=%c release=%c product=%*s", Response: true},
}

// Setup type codes of setup_adc_channel and setup_dac_channel.
var (
	adcTypes = []Function{FunctionVoltageAdc, FunctionCurrentAdcExt, FunctionCurrentAdcLoop}
	dacTypes = []Function{FunctionVoltageDac, FunctionCurrentDac}
)

// errRange marks arguments that decoded but fall outside their domain.
// Those are answered with command_status ok=0.
var errRange = errors.New("argument out of range")

func decodeArgs(data *[]byte, n int) ([]uint32, error) {
	args := make([]uint32, n)
	for i := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		args[i] = v
	}
	return args, nil
}

func channelArg(v uint32) (Channel, error) {
	if v >= NumChannels {
		return 0, errors.Wrapf(errRange, "channel %d", v)
	}
	return Channel(v), nil
}

func flag(v uint32) bool { return v != 0 }

// status answers a set or setup command. Range and operation failures
// become ok=0, nothing else is reported to the host.
func (m *Module) status(cmd *core.Command, err error) error {
	ok := uint32(1)
	if err != nil {
		ok = 0
		m.log.Warn("command failed", zap.String("cmd", cmd.Name), zap.Error(err))
	}
	return m.out.SendResponse("command_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(cmd.ID))
		protocol.EncodeVLQUint(output, ok)
	})
}

func (m *Module) setupRtd(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 3)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}

	d := m.drv
	d.ConfigureRtd(ch, flag(args[1]), args[2])
	err = d.SendRtd(ch)
	if err == nil && !d.AdcEnableChannel(ch) {
		err = errors.Wrapf(ErrFunctionMismatch, "%s", ch)
	}
	if err == nil {
		err = d.StartAdc(AdcStart{})
	}
	return m.status(cmd, err)
}

func (m *Module) setupAdc(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 9)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}
	if args[1] >= uint32(len(adcTypes)) {
		return m.status(cmd, errors.Wrapf(errRange, "adc type %d", args[1]))
	}
	if args[2] > ad74412r.AdcMuxMask {
		return m.status(cmd, errors.Wrapf(errRange, "adc mux %d", args[2]))
	}
	if args[3] > ad74412r.RangePm10V {
		return m.status(cmd, errors.Wrapf(errRange, "adc range %d", args[3]))
	}
	add := flag(args[8])

	d := m.drv
	if add && !d.FunctionOf(ch).AdcCompatible() {
		// nothing is staged or written for a channel the ADC cannot sample
		return m.status(cmd, errors.Wrapf(ErrFunctionMismatch, "%s is %s", ch, d.FunctionOf(ch)))
	}
	if add {
		// Sampling on top of the current function: keep the selector.
		d.BlockFunction(ch)
	} else {
		d.ConfigureFunction(ch, adcTypes[args[1]])
	}
	cfg := d.StagedAdc(ch)
	cfg.Mux = uint8(args[2])
	cfg.Range = uint8(args[3])
	cfg.PullDown = flag(args[4])
	cfg.Rejection = flag(args[5])
	cfg.Diagnostic = flag(args[6])
	cfg.MovingAverage = uint8(min(args[7], MaxMovingAverage))
	d.ConfigureAdc(ch, cfg)

	err = d.SendAdc(ch)
	if add {
		d.AllowFunction(ch)
	}
	if err == nil && !d.AdcEnableChannel(ch) {
		err = errors.Wrapf(ErrFunctionMismatch, "%s is %s", ch, d.FunctionOf(ch))
	}
	if err == nil {
		err = d.StartAdc(AdcStart{})
	}
	return m.status(cmd, err)
}

func (m *Module) setupDac(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 8)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}
	if args[1] >= uint32(len(dacTypes)) {
		return m.status(cmd, errors.Wrapf(errRange, "dac type %d", args[1]))
	}
	f := dacTypes[args[1]]

	d := m.drv
	d.ConfigureFunction(ch, f)
	d.ConfigureDacCurrentLimit(ch, flag(args[2]))
	if flag(args[3]) {
		d.ConfigureDacUseSlew(ch, uint8(args[4]), uint8(args[5]))
	} else {
		d.ConfigureDacDisableSlew(ch)
	}
	d.ConfigureDacReset(ch, flag(args[6]), DacCodeFor(f, uint16(args[7])))
	return m.status(cmd, d.SendDac(ch))
}

func (m *Module) setupDi(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 9)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}

	d := m.drv
	d.ConfigureFunction(ch, FunctionDigitalInLogic)
	d.ConfigureDin(ch, DinConfig{
		Filter:          flag(args[1]),
		Invert:          flag(args[2]),
		CompEnable:      flag(args[3]),
		DebounceSimple:  flag(args[4]),
		ScaledThreshold: flag(args[5]),
		Threshold:       uint8(min(args[6], ad74412r.DinCompThreshMask)),
		Sink:            uint8(min(args[7], ad74412r.DinSinkMask)),
		DebounceTime:    uint8(min(args[8], ad74412r.DinDebounceTimeMask)),
	})
	d.AdcDisableChannel(ch)
	err = d.SendDin(ch)
	if err == nil {
		err = d.RestartAdc(ch.Chip())
	}
	return m.status(cmd, err)
}

func (m *Module) setupHighImpedance(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}

	d := m.drv
	d.ConfigureFunction(ch, FunctionHighImpedance)
	d.AdcDisableChannel(ch)
	err = d.SendFunction(ch)
	if err == nil {
		err = d.RestartAdc(ch.Chip())
	}
	return m.status(cmd, err)
}

func (m *Module) getAdc(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}

	d := m.drv
	if !d.AdcEnabled(ch) {
		return m.status(cmd, errors.Wrapf(ErrFunctionMismatch, "%s not sampled", ch))
	}
	if err := d.UpdateAdc(AdcUpdate{WaitForConversion: true}); err != nil {
		m.log.Debug("adc update", zap.Error(err))
	}
	r := d.AdcValue(ch)
	if !r.Valid {
		return m.status(cmd, errors.Wrapf(ErrStale, "%s", ch))
	}
	return m.out.SendResponse("adc_value", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
		protocol.EncodeVLQUint(output, uint32(r.Raw))
		protocol.EncodeVLQInt(output, r.Value)
		protocol.EncodeVLQUint(output, uint32(r.Unit))
	})
}

func (m *Module) getAllAdc(cmd *core.Command, data *[]byte) error {
	d := m.drv
	if err := d.UpdateAdc(AdcUpdate{WaitForConversion: true}); err != nil {
		m.log.Debug("adc update", zap.Error(err))
	}

	values := make([]byte, 4*NumChannels)
	for _, ch := range Channels() {
		binary.BigEndian.PutUint32(values[4*ch:], uint32(d.AdcValue(ch).Value))
	}
	return m.out.SendResponse("all_adc_values", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(output, values)
	})
}

func (m *Module) setDac(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 3)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}

	d := m.drv
	f := d.FunctionOf(ch)
	if !f.IsDac() {
		return m.status(cmd, errors.Wrapf(ErrFunctionMismatch, "%s is %s", ch, f))
	}
	d.ConfigureDacValue(ch, DacCodeFor(f, uint16(args[1])))
	return m.status(cmd, d.UpdateDacValue(ch, DacUpdate{ToggleLatch: flag(args[2])}))
}

// setAllDac writes every DAC channel and latches each chip once. values
// holds one big-endian uint16 per channel; non-DAC channels are skipped.
func (m *Module) setAllDac(cmd *core.Command, data *[]byte) error {
	values, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	if len(values) != 2*NumChannels {
		return errors.Errorf("set_all_dac_values: %d bytes", len(values))
	}

	d := m.drv
	var touched [NumChips]bool
	for _, ch := range Channels() {
		f := d.FunctionOf(ch)
		if !f.IsDac() {
			continue
		}
		d.ConfigureDacValue(ch, DacCodeFor(f, binary.BigEndian.Uint16(values[2*ch:])))
		if err = d.UpdateDacValue(ch, DacUpdate{}); err != nil {
			return m.status(cmd, err)
		}
		touched[ch.Chip()] = true
	}
	for chip, t := range touched {
		if !t {
			continue
		}
		if err = d.LatchDac(Chip(chip)); err != nil {
			break
		}
	}
	return m.status(cmd, err)
}

func (m *Module) getDi(cmd *core.Command, data *[]byte) error {
	if err := m.drv.UpdateDinReadings(); err != nil {
		return m.status(cmd, err)
	}
	mask := m.drv.DigitalInputs()
	return m.out.SendResponse("di_value", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(mask))
	})
}

// setPwm applies a period and pulse. A zero period suspends the output.
func (m *Module) setPwm(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 3)
	if err != nil {
		return err
	}
	p, err := NewPwmChannel(int(args[0]))
	if err != nil {
		return m.status(cmd, err)
	}

	d := m.drv
	if args[1] == 0 {
		return m.status(cmd, d.SuspendPwm(p))
	}
	d.ConfigurePwmPeriod(p, args[1])
	d.ConfigurePwmPulse(p, args[2])
	return m.status(cmd, d.UpdatePwm(p))
}

func (m *Module) getRtd(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}

	d := m.drv
	if !d.RtdValue(ch).Valid || !m.sched.Pending(&m.rtdTimer) {
		// No periodic refresh running, compute from the last conversion.
		if err := d.UpdateRtd(ch); err != nil {
			return m.status(cmd, err)
		}
	}
	r := d.RtdValue(ch)
	centi := int64(r.Temperature-physic.ZeroCelsius) / int64(physic.Celsius/100)
	return m.out.SendResponse("rtd_value", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
		protocol.EncodeVLQUint(output, uint32(milliOhms(r.Resistance)))
		protocol.EncodeVLQInt(output, clamp32(centi))
	})
}

func (m *Module) setRtdRate(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	m.SetRtdUpdateRate(args[0])
	return m.status(cmd, nil)
}

func (m *Module) setLed(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	m.drv.ConfigureLeds(uint8(args[0]))
	return m.status(cmd, nil)
}

func (m *Module) setGpo(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 3)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}
	if args[1] > GpoHighZ {
		return m.status(cmd, errors.Wrapf(errRange, "gpo mode %d", args[1]))
	}

	m.drv.ConfigureGpo(ch, GpoConfig{Mode: uint8(args[1]), Level: flag(args[2])})
	return m.status(cmd, m.drv.UpdateGpo(ch))
}

func (m *Module) getDac(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	ch, err := channelArg(args[0])
	if err != nil {
		return m.status(cmd, err)
	}
	if err := m.drv.UpdateDacPresentValue(ch); err != nil {
		return m.status(cmd, err)
	}
	code := m.drv.DacPresentValue(ch)
	return m.out.SendResponse("dac_value", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
		protocol.EncodeVLQUint(output, uint32(code))
	})
}

func (m *Module) getAlert(cmd *core.Command, data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	chip, err := NewChip(int(args[0]))
	if err != nil {
		return m.status(cmd, err)
	}
	if err := m.drv.UpdateAlertStatus(chip); err != nil {
		return m.status(cmd, err)
	}
	status := m.drv.AlertStatus(chip)
	return m.out.SendResponse("alert_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(chip))
		protocol.EncodeVLQUint(output, uint32(status))
	})
}

func (m *Module) getVersion(cmd *core.Command, data *[]byte) error {
	return m.out.SendResponse("version", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, FirmwareMajor)
		protocol.EncodeVLQUint(output, FirmwareMinor)
		protocol.EncodeVLQUint(output, FirmwareRelease)
		protocol.EncodeVLQBytes(output, []byte(ProductID))
	})
}
