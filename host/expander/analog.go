package expander

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"analogio/analog"
	"analogio/protocol"
)

// AdcSetup mirrors the arguments of setup_adc_channel.
type AdcSetup struct {
	Type          uint8 // 0 voltage, 1 current external, 2 current loop
	Mux           uint8
	Range         uint8
	PullDown      bool
	Rejection     bool
	Diagnostic    bool
	MovingAverage uint8
	Add           bool // sample without changing the channel function
}

// DacSetup mirrors the arguments of setup_dac_channel. ResetValue is in
// millivolts or microamps like set_dac_value.
type DacSetup struct {
	Current      bool
	LimitCurrent bool
	Slew         bool
	SlewRate     uint8
	SlewStep     uint8
	UseReset     bool
	ResetValue   uint16
}

// DinSetup mirrors the arguments of setup_di_channel.
type DinSetup struct {
	Filter         bool
	Invert         bool
	Enable         bool
	DebounceSimple bool
	Scaled         bool
	Threshold      uint8
	Sink           uint8
	DebounceTime   uint8
}

// AdcValue is an adc_value response.
type AdcValue struct {
	Channel uint8
	Raw     uint16
	Value   int32
	Unit    analog.Unit
}

// RtdValue is an rtd_value response.
type RtdValue struct {
	Channel      uint8
	MilliOhm     uint32
	CentiCelsius int32
}

func (c *Client) SetupAdc(ch uint8, s AdcSetup) error {
	return c.Status("setup_adc_channel", ch, s.Type, s.Mux, s.Range, s.PullDown,
		s.Rejection, s.Diagnostic, s.MovingAverage, s.Add)
}

func (c *Client) SetupDac(ch uint8, s DacSetup) error {
	return c.Status("setup_dac_channel", ch, s.Current, s.LimitCurrent, s.Slew,
		s.SlewRate, s.SlewStep, s.UseReset, s.ResetValue)
}

func (c *Client) SetupRtd(ch uint8, threeWire bool, currentMicroAmps uint32) error {
	return c.Status("setup_rtd_channel", ch, threeWire, currentMicroAmps)
}

func (c *Client) SetupDin(ch uint8, s DinSetup) error {
	return c.Status("setup_di_channel", ch, s.Filter, s.Invert, s.Enable,
		s.DebounceSimple, s.Scaled, s.Threshold, s.Sink, s.DebounceTime)
}

func (c *Client) SetupHighImpedance(ch uint8) error {
	return c.Status("setup_high_impedance_channel", ch)
}

// GetAdc waits for a conversion of ch and returns it.
func (c *Client) GetAdc(ch uint8) (AdcValue, error) {
	p, err := c.Request("get_adc_value", "adc_value", ch)
	if err != nil {
		return AdcValue{}, err
	}
	var v AdcValue
	raw, err := decodeUints(&p, 2)
	if err != nil {
		return v, err
	}
	v.Channel, v.Raw = uint8(raw[0]), uint16(raw[1])
	if v.Value, err = protocol.DecodeVLQInt(&p); err != nil {
		return v, err
	}
	unit, err := protocol.DecodeVLQUint(&p)
	v.Unit = analog.Unit(unit)
	return v, err
}

// GetAllAdc returns the last value of every channel in engineering units.
func (c *Client) GetAllAdc() ([analog.NumChannels]int32, error) {
	var out [analog.NumChannels]int32
	p, err := c.Request("get_all_adc_values", "all_adc_values")
	if err != nil {
		return out, err
	}
	values, err := protocol.DecodeVLQBytes(&p)
	if err != nil {
		return out, err
	}
	if len(values) != 4*analog.NumChannels {
		return out, errors.Errorf("all_adc_values: %d bytes", len(values))
	}
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(values[4*i:]))
	}
	return out, nil
}

// SetDac drives ch to value, millivolts or microamps. Without latch the
// value waits for the next latching write on the same chip.
func (c *Client) SetDac(ch uint8, value uint16, latch bool) error {
	return c.Status("set_dac_value", ch, value, latch)
}

// SetAllDac writes every DAC channel and latches both chips once.
func (c *Client) SetAllDac(values [analog.NumChannels]uint16) error {
	buf := make([]byte, 2*analog.NumChannels)
	for i, v := range values {
		binary.BigEndian.PutUint16(buf[2*i:], v)
	}
	return c.Status("set_all_dac_values", buf)
}

// GetDac returns the code the DAC of ch is driving.
func (c *Client) GetDac(ch uint8) (uint16, error) {
	p, err := c.Request("get_dac_value", "dac_value", ch)
	if err != nil {
		return 0, err
	}
	v, err := decodeUints(&p, 2)
	if err != nil {
		return 0, err
	}
	return uint16(v[1]), nil
}

// GetDin returns the digital input levels as a channel bitmask.
func (c *Client) GetDin() (uint8, error) {
	p, err := c.Request("get_di_value", "di_value")
	if err != nil {
		return 0, err
	}
	v, err := decodeUints(&p, 1)
	if err != nil {
		return 0, err
	}
	return uint8(v[0]), nil
}

// SetPwm sets period and high time of a PWM output. A zero period stops it.
func (c *Client) SetPwm(ch uint8, periodUs, pulseUs uint32) error {
	return c.Status("set_pwm_value", ch, periodUs, pulseUs)
}

func (c *Client) GetRtd(ch uint8) (RtdValue, error) {
	p, err := c.Request("get_rtd_value", "rtd_value", ch)
	if err != nil {
		return RtdValue{}, err
	}
	v, err := decodeUints(&p, 2)
	if err != nil {
		return RtdValue{}, err
	}
	centi, err := protocol.DecodeVLQInt(&p)
	return RtdValue{Channel: uint8(v[0]), MilliOhm: v[1], CentiCelsius: centi}, err
}

// SetRtdRate sets the RTD refresh period. Zero stops the refresh.
func (c *Client) SetRtdRate(ms uint16) error {
	return c.Status("set_rtd_update_rate", ms)
}

func (c *Client) SetLeds(mask uint8) error {
	return c.Status("set_led", mask)
}

func (c *Client) SetGpo(ch, mode uint8, level bool) error {
	return c.Status("set_gpo", ch, mode, level)
}

// GetAlert returns the watched alert bits of chip.
func (c *Client) GetAlert(chip uint8) (uint16, error) {
	p, err := c.Request("get_alert_status", "alert_status", chip)
	if err != nil {
		return 0, err
	}
	v, err := decodeUints(&p, 2)
	if err != nil {
		return 0, err
	}
	return uint16(v[1]), nil
}

// GetClock returns the module clock in microseconds.
func (c *Client) GetClock() (uint32, error) {
	p, err := c.Request("get_clock", "clock")
	if err != nil {
		return 0, err
	}
	return protocol.DecodeVLQUint(&p)
}

// Version identifies the module firmware.
type Version struct {
	Major, Minor, Release uint8
	Product               string
}

func (v Version) String() string {
	return fmt.Sprintf("%s %d.%d.%d", v.Product, v.Major, v.Minor, v.Release)
}

func (c *Client) GetVersion() (Version, error) {
	p, err := c.Request("get_version", "version")
	if err != nil {
		return Version{}, err
	}
	v, err := decodeUints(&p, 3)
	if err != nil {
		return Version{}, err
	}
	product, err := protocol.DecodeVLQBytes(&p)
	if err != nil {
		return Version{}, errors.Wrap(err, "product")
	}
	return Version{Major: uint8(v[0]), Minor: uint8(v[1]), Release: uint8(v[2]), Product: string(product)}, nil
}

func decodeUints(p *[]byte, n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := protocol.DecodeVLQUint(p)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		out[i] = v
	}
	return out, nil
}
