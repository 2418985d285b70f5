package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"analogio/analog"
	"analogio/host/expander"
)

type command struct {
	usage string
	run   func(s *shell, ctx context.Context, o opts) error
}

var commands = map[string]command{
	"dict":        {"", (*shell).dict},
	"clock":       {"", (*shell).clock},
	"version":     {"", (*shell).version},
	"setup-adc":   {"ch= [type=0] [mux=0] [range=0] [pull=0] [reject=1] [diag=0] [avg=0] [add=0]", (*shell).setupAdc},
	"setup-dac":   {"ch= [current=0] [limit=0] [slew=0] [rate=0] [step=0] [reset=0] [reset_value=0]", (*shell).setupDac},
	"setup-rtd":   {"ch= [three_wire=0] [current=0]", (*shell).setupRtd},
	"setup-di":    {"ch= [filter=0] [invert=0] [enable=1] [simple=0] [scaled=0] [threshold=0] [sink=0] [debounce=0]", (*shell).setupDi},
	"hiz":         {"ch=", (*shell).hiz},
	"get-adc":     {"ch=", (*shell).getAdc},
	"get-all-adc": {"", (*shell).getAllAdc},
	"set-dac":     {"ch= value= [latch=1]", (*shell).setDac},
	"get-dac":     {"ch=", (*shell).getDac},
	"get-di":      {"", (*shell).getDi},
	"set-pwm":     {"ch= period= pulse=", (*shell).setPwm},
	"get-rtd":     {"ch=", (*shell).getRtd},
	"rtd-rate":    {"ms=", (*shell).rtdRate},
	"led":         {"mask=", (*shell).led},
	"gpo":         {"ch= [mode=1] level=", (*shell).gpo},
	"alert":       {"chip=", (*shell).alert},
	"monitor":     {"[count=0]", (*shell).monitor},
}

type shell struct {
	client      *expander.Client
	out         io.Writer
	monitorRate float64
}

func (s *shell) help() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(s.out, "\nAvailable commands:")
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-12s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(s.out, "  quit/exit/q")
	fmt.Fprintln(s.out)
}

// exec runs one command line, name first, then name=value arguments.
func (s *shell) exec(ctx context.Context, fields []string) error {
	cmd, ok := commands[fields[0]]
	if !ok {
		return errors.Errorf("unknown command %q (type 'help' for available commands)", fields[0])
	}
	o, err := parseOpts(fields[1:])
	if err != nil {
		return err
	}
	if err := cmd.run(s, ctx, o); err != nil {
		return err
	}
	return o.unused()
}

// opts are the name=value arguments of a command line.
type opts struct {
	values map[string]string
	used   map[string]bool
}

func parseOpts(args []string) (opts, error) {
	o := opts{values: map[string]string{}, used: map[string]bool{}}
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return o, errors.Errorf("malformed argument %q, want name=value", a)
		}
		o.values[name] = value
	}
	return o, nil
}

func (o opts) uint(name string, def uint64, bits int) (uint64, error) {
	o.used[name] = true
	v, ok := o.values[name]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 0, bits)
	return n, errors.Wrapf(err, "argument %s", name)
}

func (o opts) required(name string, bits int) (uint64, error) {
	if _, ok := o.values[name]; !ok {
		o.used[name] = true
		return 0, errors.Errorf("missing argument %s", name)
	}
	return o.uint(name, 0, bits)
}

func (o opts) u8(name string, def uint8) (uint8, error) {
	v, err := o.uint(name, uint64(def), 8)
	return uint8(v), err
}

func (o opts) flag(name string, def bool) (bool, error) {
	d := uint64(0)
	if def {
		d = 1
	}
	v, err := o.uint(name, d, 8)
	return v != 0, err
}

func (o opts) channel() (uint8, error) {
	v, err := o.required("ch", 8)
	return uint8(v), err
}

func (o opts) unused() error {
	for name := range o.values {
		if !o.used[name] {
			return errors.Errorf("unknown argument %s", name)
		}
	}
	return nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v int32, u analog.Unit) string {
	switch u {
	case analog.UnitMicroVolt:
		return fmt.Sprintf("%.6f V", float64(v)/1e6)
	case analog.UnitMicroAmpere:
		return fmt.Sprintf("%.3f mA", float64(v)/1e3)
	case analog.UnitMilliOhm:
		return fmt.Sprintf("%.3f ohm", float64(v)/1e3)
	}
	return strconv.Itoa(int(v))
}

func (s *shell) dict(_ context.Context, _ opts) error {
	d := s.client.Dictionary()
	if d == nil {
		return expander.ErrNoDictionary
	}
	fmt.Fprintf(s.out, "version %s, %d compressed bytes\n", d.Version, len(s.client.DictionaryRaw()))
	sigs := make([]string, 0, len(d.Commands))
	for sig := range d.Commands {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	for _, sig := range sigs {
		fmt.Fprintf(s.out, "  %3d %s\n", d.Commands[sig], sig)
	}
	return nil
}

func (s *shell) clock(_ context.Context, _ opts) error {
	c, err := s.client.GetClock()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "clock %d us\n", c)
	return nil
}

func (s *shell) version(_ context.Context, _ opts) error {
	v, err := s.client.GetVersion()
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, v)
	return nil
}

func (s *shell) setupAdc(_ context.Context, o opts) error {
	ch, err := o.channel()
	var a expander.AdcSetup
	var e [8]error
	a.Type, e[0] = o.u8("type", 0)
	a.Mux, e[1] = o.u8("mux", 0)
	a.Range, e[2] = o.u8("range", 0)
	a.PullDown, e[3] = o.flag("pull", false)
	a.Rejection, e[4] = o.flag("reject", true)
	a.Diagnostic, e[5] = o.flag("diag", false)
	a.MovingAverage, e[6] = o.u8("avg", 0)
	a.Add, e[7] = o.flag("add", false)
	if err := firstErr(append([]error{err}, e[:]...)...); err != nil {
		return err
	}
	return s.client.SetupAdc(ch, a)
}

func (s *shell) setupDac(_ context.Context, o opts) error {
	ch, err := o.channel()
	var d expander.DacSetup
	var e [7]error
	var resetValue uint64
	d.Current, e[0] = o.flag("current", false)
	d.LimitCurrent, e[1] = o.flag("limit", false)
	d.Slew, e[2] = o.flag("slew", false)
	d.SlewRate, e[3] = o.u8("rate", 0)
	d.SlewStep, e[4] = o.u8("step", 0)
	d.UseReset, e[5] = o.flag("reset", false)
	resetValue, e[6] = o.uint("reset_value", 0, 16)
	if err := firstErr(append([]error{err}, e[:]...)...); err != nil {
		return err
	}
	d.ResetValue = uint16(resetValue)
	return s.client.SetupDac(ch, d)
}

func (s *shell) setupRtd(_ context.Context, o opts) error {
	ch, err := o.channel()
	threeWire, err2 := o.flag("three_wire", false)
	current, err3 := o.uint("current", 0, 32)
	if err := firstErr(err, err2, err3); err != nil {
		return err
	}
	return s.client.SetupRtd(ch, threeWire, uint32(current))
}

func (s *shell) setupDi(_ context.Context, o opts) error {
	ch, err := o.channel()
	var d expander.DinSetup
	var e [8]error
	d.Filter, e[0] = o.flag("filter", false)
	d.Invert, e[1] = o.flag("invert", false)
	d.Enable, e[2] = o.flag("enable", true)
	d.DebounceSimple, e[3] = o.flag("simple", false)
	d.Scaled, e[4] = o.flag("scaled", false)
	d.Threshold, e[5] = o.u8("threshold", 0)
	d.Sink, e[6] = o.u8("sink", 0)
	d.DebounceTime, e[7] = o.u8("debounce", 0)
	if err := firstErr(append([]error{err}, e[:]...)...); err != nil {
		return err
	}
	return s.client.SetupDin(ch, d)
}

func (s *shell) hiz(_ context.Context, o opts) error {
	ch, err := o.channel()
	if err != nil {
		return err
	}
	return s.client.SetupHighImpedance(ch)
}

func (s *shell) getAdc(_ context.Context, o opts) error {
	ch, err := o.channel()
	if err != nil {
		return err
	}
	v, err := s.client.GetAdc(ch)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "ch%d raw=0x%04x %s\n", v.Channel, v.Raw, formatValue(v.Value, v.Unit))
	return nil
}

func (s *shell) getAllAdc(_ context.Context, _ opts) error {
	values, err := s.client.GetAllAdc()
	if err != nil {
		return err
	}
	for ch, v := range values {
		fmt.Fprintf(s.out, "ch%d %d\n", ch, v)
	}
	return nil
}

func (s *shell) setDac(_ context.Context, o opts) error {
	ch, err := o.channel()
	value, err2 := o.required("value", 16)
	latch, err3 := o.flag("latch", true)
	if err := firstErr(err, err2, err3); err != nil {
		return err
	}
	return s.client.SetDac(ch, uint16(value), latch)
}

func (s *shell) getDac(_ context.Context, o opts) error {
	ch, err := o.channel()
	if err != nil {
		return err
	}
	code, err := s.client.GetDac(ch)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "ch%d code=0x%04x\n", ch, code)
	return nil
}

func (s *shell) getDi(_ context.Context, _ opts) error {
	mask, err := s.client.GetDin()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "di %08b\n", mask)
	return nil
}

func (s *shell) setPwm(_ context.Context, o opts) error {
	ch, err := o.channel()
	period, err2 := o.required("period", 32)
	pulse, err3 := o.uint("pulse", 0, 32)
	if err := firstErr(err, err2, err3); err != nil {
		return err
	}
	return s.client.SetPwm(ch, uint32(period), uint32(pulse))
}

func (s *shell) getRtd(_ context.Context, o opts) error {
	ch, err := o.channel()
	if err != nil {
		return err
	}
	v, err := s.client.GetRtd(ch)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "ch%d %.3f ohm %.2f C\n", v.Channel, float64(v.MilliOhm)/1e3, float64(v.CentiCelsius)/100)
	return nil
}

func (s *shell) rtdRate(_ context.Context, o opts) error {
	ms, err := o.required("ms", 16)
	if err != nil {
		return err
	}
	return s.client.SetRtdRate(uint16(ms))
}

func (s *shell) led(_ context.Context, o opts) error {
	mask, err := o.required("mask", 8)
	if err != nil {
		return err
	}
	return s.client.SetLeds(uint8(mask))
}

func (s *shell) gpo(_ context.Context, o opts) error {
	ch, err := o.channel()
	mode, err2 := o.u8("mode", analog.GpoLogic)
	level, err3 := o.required("level", 8)
	if err := firstErr(err, err2, err3); err != nil {
		return err
	}
	return s.client.SetGpo(ch, mode, level != 0)
}

func (s *shell) alert(_ context.Context, o opts) error {
	chip, err := o.required("chip", 8)
	if err != nil {
		return err
	}
	status, err := s.client.GetAlert(uint8(chip))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "chip%d alert=0x%04x\n", chip, status)
	return nil
}

// monitor polls every ADC value, the digital inputs and both alert
// registers at the configured rate. count=0 runs until interrupted.
func (s *shell) monitor(ctx context.Context, o opts) error {
	count, err := o.uint("count", 0, 32)
	if err != nil {
		return err
	}
	if s.monitorRate <= 0 {
		return errors.New("monitor rate must be positive")
	}

	limiter := rate.NewLimiter(rate.Limit(s.monitorRate), 1)
	for n := uint64(0); count == 0 || n < count; n++ {
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := s.sample(); err != nil {
			return err
		}
	}
	return nil
}

func (s *shell) sample() error {
	values, err := s.client.GetAllAdc()
	if err != nil {
		return err
	}
	mask, err := s.client.GetDin()
	if err != nil {
		return err
	}
	var alerts [analog.NumChips]uint16
	for chip := range alerts {
		if alerts[chip], err = s.client.GetAlert(uint8(chip)); err != nil {
			return err
		}
	}

	var b strings.Builder
	for _, v := range values {
		fmt.Fprintf(&b, "%d ", v)
	}
	fmt.Fprintf(s.out, "adc %sdi %08b alert 0x%04x 0x%04x\n", b.String(), mask, alerts[0], alerts[1])
	return nil
}
