package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"analogio/config"
	"analogio/host/expander"
	"analogio/host/serial"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	device     = flag.String("device", "", "Serial device path, overrides the config")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		cfg.Host.Serial.Device = *device
	}

	log := newLogger(*debug || cfg.Debug)
	defer func() { _ = log.Sync() }()

	sc := &serial.Config{
		Device:      cfg.Host.Serial.Device,
		Baud:        cfg.Host.Serial.Baud,
		ReadTimeout: cfg.Host.Serial.ReadTimeout,
	}
	log.Info("connecting", zap.String("device", sc.Device))
	client, err := expander.Dial(sc, cfg.Host.ConnectRetry, cfg.Host.CommandTimeout, log)
	if err != nil {
		log.Fatal("failed to connect", zap.Error(err))
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sh := &shell{client: client, out: os.Stdout, monitorRate: cfg.Host.MonitorRate}

	// A command on the command line runs once.
	if flag.NArg() > 0 {
		if err := sh.exec(ctx, flag.Args()); err != nil {
			log.Fatal("command failed", zap.Error(err))
		}
		return
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit", "q":
			return
		case "help", "?":
			sh.help()
			continue
		}
		if err := sh.exec(ctx, fields); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatal("reading input", zap.Error(err))
	}
}

func newLogger(debug bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}
