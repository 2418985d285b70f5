package expander

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analogio/ad74412r"
	"analogio/analog"
	"analogio/core"
	"analogio/sim"
)

type pipePort struct{ net.Conn }

func (pipePort) Flush() error { return nil }

type rig struct {
	client *Client
	chips  *sim.Chips
}

// newRig serves a simulated module on one end of a pipe and connects a
// client to the other. tick is the module's update period.
func newRig(t *testing.T, tick time.Duration) *rig {
	t.Helper()
	fwSide, hostSide := net.Pipe()

	chips := sim.NewChips()
	clock := core.NewSystemClock()
	loop := core.NewLoop(fwSide, clock, tick, nil)
	drv := analog.New(analog.Options{Bus: chips, Clock: clock})
	mod := analog.NewModule(drv, loop.Firmware().Scheduler(), 0, nil)
	require.NoError(t, loop.Firmware().AddModule(mod))
	require.NoError(t, loop.Firmware().Begin())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(done)
	}()

	c := NewClient(pipePort{hostSide}, time.Second, nil)
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
		<-done
		_ = fwSide.Close()
	})
	require.NoError(t, c.RetrieveDictionary())
	return &rig{client: c, chips: chips}
}

func TestClientDictionary(t *testing.T) {
	r := newRig(t, time.Millisecond)
	dict := r.client.Dictionary()
	require.NotNil(t, dict)
	assert.Equal(t, 0, dict.Responses["identify_response offset=%u data=%*s"])
	assert.Contains(t, dict.Commands, "get_di_value")
	assert.NotEmpty(t, r.client.DictionaryRaw())

	_, err := r.client.GetClock()
	assert.NoError(t, err)

	assert.True(t, errors.Is(r.client.Send("no_such_command"), core.ErrUnknownCommand))
}

func TestClientAdc(t *testing.T) {
	r := newRig(t, time.Millisecond)

	require.NoError(t, r.client.SetupAdc(3, AdcSetup{Range: ad74412r.RangePm10V, Rejection: true}))
	r.chips.SetAdcResult(1, 1, 0xC000)

	v, err := r.client.GetAdc(3)
	require.NoError(t, err)
	assert.Equal(t, AdcValue{Channel: 3, Raw: 0xC000, Value: 5000228, Unit: analog.UnitMicroVolt}, v)

	all, err := r.client.GetAllAdc()
	require.NoError(t, err)
	assert.Equal(t, int32(5000228), all[3])

	_, err = r.client.GetAdc(4)
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestClientDacAndOutputs(t *testing.T) {
	r := newRig(t, time.Millisecond)

	require.NoError(t, r.client.SetupDac(6, DacSetup{LimitCurrent: true}))
	require.NoError(t, r.client.SetDac(6, 5000, true))
	code, err := r.client.GetDac(6)
	require.NoError(t, err)
	assert.Equal(t, ad74412r.DacCodeForVoltage(5e9), code)

	var values [analog.NumChannels]uint16
	values[6] = 2500
	require.NoError(t, r.client.SetAllDac(values))
	code, err = r.client.GetDac(6)
	require.NoError(t, err)
	assert.Equal(t, ad74412r.DacCodeForVoltage(2500*1e6), code)

	assert.True(t, errors.Is(r.client.SetDac(1, 100, true), ErrRejected))

	require.NoError(t, r.client.SetGpo(4, analog.GpoLogic, true))
	require.NoError(t, r.client.SetLeds(0x3))
	assert.True(t, errors.Is(r.client.SetPwm(0, 1000, 500), ErrRejected))
}

func TestClientDinAndAlerts(t *testing.T) {
	// no periodic update, it would consume the alert first
	r := newRig(t, time.Hour)

	require.NoError(t, r.client.SetupDin(7, DinSetup{Enable: true, Threshold: 12}))
	r.chips.SetComparators(0, 1<<3)
	mask, err := r.client.GetDin()
	require.NoError(t, err)
	assert.Equal(t, uint8(1<<7), mask)

	r.chips.RaiseAlert(0, ad74412r.AlertAdcSatErr)
	status, err := r.client.GetAlert(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(ad74412r.AlertAdcSatErr), status)
}

func TestClientRtd(t *testing.T) {
	r := newRig(t, time.Millisecond)

	require.NoError(t, r.client.SetupRtd(5, false, 0))
	r.chips.SetAdcResult(1, 3, 2979)
	require.NoError(t, r.client.SetRtdRate(0))

	// the module refreshes conversions on its own tick
	require.Eventually(t, func() bool {
		v, err := r.client.GetRtd(5)
		return err == nil && v.MilliOhm > 99_000 && v.MilliOhm < 101_000
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, r.client.SetupHighImpedance(5))
	_, err := r.client.GetRtd(5)
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestClientSendRejectsUnsupportedArgument(t *testing.T) {
	r := newRig(t, time.Millisecond)
	seq := r.client.transport.Sequence()

	err := r.client.Send("set_led", 3.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float64")
	// nothing went out, the link stays in step
	assert.Equal(t, seq, r.client.transport.Sequence())

	require.NoError(t, r.client.SetLeds(1))
	_, err = r.client.GetClock()
	assert.NoError(t, err)
}

func TestClientVersion(t *testing.T) {
	r := newRig(t, time.Millisecond)
	v, err := r.client.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, Version{
		Major:   analog.FirmwareMajor,
		Minor:   analog.FirmwareMinor,
		Release: analog.FirmwareRelease,
		Product: analog.ProductID,
	}, v)
	assert.Equal(t, "ANALOG_EXPANSION 0.1.0", v.String())
}
