// Package config loads the settings of the firmware binary and the host
// tool from a YAML file, ANALOGIO_ environment variables and defaults.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Module ModuleConfig `mapstructure:"module"`
	Host   HostConfig   `mapstructure:"host"`
	Debug  bool         `mapstructure:"debug"`
}

// ModuleConfig describes the hardware the firmware drives.
type ModuleConfig struct {
	Sim bool `mapstructure:"sim"`

	// One spidev path per chip, chip 0 first.
	SPIDevices []string `mapstructure:"spi_devices"`
	SPISpeedHz int64    `mapstructure:"spi_speed_hz"`

	GPIOChip  string `mapstructure:"gpio_chip"`
	LdacLines []int  `mapstructure:"ldac_lines"`
	ResetLine int    `mapstructure:"reset_line"` // -1: software reset
	LedLines  []int  `mapstructure:"led_lines"`

	PWMChip     string `mapstructure:"pwm_chip"`
	PWMChannels []int  `mapstructure:"pwm_channels"`

	Serial         SerialConfig  `mapstructure:"serial"`
	RtdUpdateRate  time.Duration `mapstructure:"rtd_update_rate"`
	AdcWaitTimeout time.Duration `mapstructure:"adc_wait_timeout"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	ThermalReset   bool          `mapstructure:"thermal_reset"`
}

// HostConfig configures the host tool.
type HostConfig struct {
	Serial         SerialConfig  `mapstructure:"serial"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	MonitorRate    float64       `mapstructure:"monitor_rate"`
	ConnectRetry   time.Duration `mapstructure:"connect_retry"`
}

type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("module.sim", false)
	v.SetDefault("module.spi_devices", []string{"/dev/spidev0.0", "/dev/spidev0.1"})
	v.SetDefault("module.spi_speed_hz", 1_000_000)
	v.SetDefault("module.gpio_chip", "gpiochip0")
	v.SetDefault("module.ldac_lines", []int{})
	v.SetDefault("module.reset_line", -1)
	v.SetDefault("module.led_lines", []int{})
	v.SetDefault("module.pwm_chip", "/sys/class/pwm/pwmchip0")
	v.SetDefault("module.pwm_channels", []int{})
	v.SetDefault("module.serial.device", "/dev/ttyGS0")
	v.SetDefault("module.serial.baud", 250000)
	v.SetDefault("module.serial.read_timeout", "10ms")
	v.SetDefault("module.rtd_update_rate", "1s")
	v.SetDefault("module.adc_wait_timeout", "250ms")
	v.SetDefault("module.update_interval", "10ms")
	v.SetDefault("module.thermal_reset", false)

	v.SetDefault("host.serial.device", "/dev/ttyACM0")
	v.SetDefault("host.serial.baud", 250000)
	v.SetDefault("host.serial.read_timeout", "100ms")
	v.SetDefault("host.command_timeout", "2s")
	v.SetDefault("host.monitor_rate", 2.0)
	v.SetDefault("host.connect_retry", "10s")
}

// Load reads path, which may be empty, on top of the defaults. Every key
// can be overridden from the environment, module.serial.device as
// ANALOGIO_MODULE_SERIAL_DEVICE.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ANALOGIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the binaries cannot start with.
func (c *Config) Validate() error {
	m := c.Module
	if !m.Sim && len(m.SPIDevices) != 2 {
		return errors.Errorf("module.spi_devices: need one device per chip, got %d", len(m.SPIDevices))
	}
	if len(m.LdacLines) != 0 && len(m.LdacLines) != 2 {
		return errors.Errorf("module.ldac_lines: need none or one line per chip, got %d", len(m.LdacLines))
	}
	if len(m.PWMChannels) > 4 {
		return errors.Errorf("module.pwm_channels: at most 4, got %d", len(m.PWMChannels))
	}
	if m.UpdateInterval <= 0 {
		return errors.New("module.update_interval must be positive")
	}
	if c.Host.MonitorRate <= 0 {
		return errors.New("host.monitor_rate must be positive")
	}
	return nil
}
