//go:build linux

// Command analogio-fw is the firmware of the analog expansion module for
// Linux boards: it drives both front-end chips over spidev and serves the
// host protocol on a serial gadget.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"analogio/analog"
	"analogio/config"
	"analogio/core"
	"analogio/host/serial"
	"analogio/sim"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	simulate   = flag.Bool("sim", false, "Serve simulated chips instead of the SPI devices")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *simulate {
		cfg.Module.Sim = true
	}

	var log *zap.Logger
	if *debug || cfg.Debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg.Module, log); err != nil {
		log.Fatal("firmware stopped", zap.Error(err))
	}
}

// hardware is what the driver runs on, plus how to release it.
type hardware struct {
	opts  analog.Options
	close func() error
}

func openHardware(cfg *config.ModuleConfig, clock core.Clock, log *zap.Logger) (*hardware, error) {
	hw := &hardware{opts: analog.Options{
		Clock:          clock,
		AdcWaitTimeout: cfg.AdcWaitTimeout,
		ThermalReset:   cfg.ThermalReset,
		Logger:         log,
	}}

	if cfg.Sim {
		chips := sim.NewChips()
		hw.opts.Bus = chips
		for i := range hw.opts.Ldac {
			hw.opts.Ldac[i] = sim.LdacPin(chips, uint8(i))
		}
		for i := range hw.opts.Pwm {
			hw.opts.Pwm[i] = &sim.PWM{}
		}
		hw.close = func() error { return nil }
		log.Warn("running on simulated chips")
		return hw, nil
	}

	bus, closeSPI, err := openSPI(cfg.SPIDevices, cfg.SPISpeedHz)
	if err != nil {
		return nil, err
	}
	hw.opts.Bus = bus

	gpio := &lines{chip: cfg.GPIOChip}
	hw.close = func() error { return multierr.Append(gpio.Close(), closeSPI()) }

	fail := func(err error) (*hardware, error) {
		_ = hw.close()
		return nil, err
	}
	for i, offset := range cfg.LdacLines {
		if hw.opts.Ldac[i], err = gpio.output(offset, true, "ad74412r-ldac"); err != nil {
			return fail(err)
		}
	}
	if cfg.ResetLine >= 0 {
		if hw.opts.Reset, err = gpio.output(cfg.ResetLine, true, "ad74412r-reset"); err != nil {
			return fail(err)
		}
	}
	for _, offset := range cfg.LedLines {
		pin, err := gpio.output(offset, false, "analogio-led")
		if err != nil {
			return fail(err)
		}
		hw.opts.Leds = append(hw.opts.Leds, pin)
	}
	for i, n := range cfg.PWMChannels {
		p, err := openPWM(cfg.PWMChip, n)
		if err != nil {
			return fail(err)
		}
		hw.opts.Pwm[i] = p
	}
	return hw, nil
}

func run(ctx context.Context, cfg *config.ModuleConfig, log *zap.Logger) (err error) {
	clock := core.NewSystemClock()

	hw, err := openHardware(cfg, clock, log)
	if err != nil {
		return errors.Wrap(err, "open hardware")
	}
	defer func() { err = multierr.Append(err, hw.close()) }()

	port, err := serial.OpenWithRetry(&serial.Config{
		Device:      cfg.Serial.Device,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeout,
	}, time.Minute, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, port.Close()) }()

	loop := core.NewLoop(port, clock, cfg.UpdateInterval, log)
	fw := loop.Firmware()
	fw.Dictionary().SetBuildVersions(runtime.Version())
	fw.Dictionary().AddConstant("NUM_CHANNELS", analog.NumChannels)
	fw.Dictionary().AddConstant("NUM_PWM", analog.NumPwm)

	drv := analog.New(hw.opts)
	if err := fw.AddModule(analog.NewModule(drv, fw.Scheduler(), cfg.RtdUpdateRate, log)); err != nil {
		return err
	}
	if err := fw.Begin(); err != nil {
		return err
	}

	log.Info("serving host link", zap.String("device", cfg.Serial.Device))
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
