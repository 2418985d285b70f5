package core

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"analogio/protocol"
)

// Responder sends a registered response to the host.
type Responder interface {
	SendResponse(name string, args func(output protocol.OutputBuffer)) error
}

// Message declares a command or response a module owns.
type Message struct {
	Name     string
	Format   string
	Response bool
}

// Module is an expansion module driven by the firmware loop. Begin runs once
// at start-up, Update on every tick and ParseRx once for every inbound
// command addressed to one of the module's messages.
type Module interface {
	Name() string
	Messages() []Message
	Begin(out Responder) error
	Update() error
	ParseRx(cmd *Command, data *[]byte) error
}

// ModuleRegistry binds modules to the command registry.
type ModuleRegistry struct {
	registry *CommandRegistry
	modules  []Module
	log      *zap.Logger
}

func NewModuleRegistry(registry *CommandRegistry, log *zap.Logger) *ModuleRegistry {
	return &ModuleRegistry{registry: registry, log: log}
}

// Add registers every message of m. Command IDs route to m.ParseRx.
func (r *ModuleRegistry) Add(m Module) error {
	for _, msg := range m.Messages() {
		if _, taken := r.registry.GetCommandByName(msg.Name); taken {
			return errors.Errorf("module %s: message %q already registered", m.Name(), msg.Name)
		}
		if msg.Response {
			r.registry.RegisterResponse(msg.Name, msg.Format)
			continue
		}

		name := msg.Name
		r.registry.Register(msg.Name, msg.Format, func(data *[]byte) error {
			cmd, _ := r.registry.GetCommandByName(name)
			return m.ParseRx(cmd, data)
		})
	}
	r.modules = append(r.modules, m)
	r.log.Debug("module registered", zap.String("module", m.Name()), zap.Int("messages", len(m.Messages())))
	return nil
}

// Begin starts every module in registration order and stops at the first failure.
func (r *ModuleRegistry) Begin(out Responder) error {
	for _, m := range r.modules {
		if err := m.Begin(out); err != nil {
			return errors.Wrapf(err, "begin %s", m.Name())
		}
	}
	return nil
}

// Update ticks every module. Failures are logged and do not stop the loop.
func (r *ModuleRegistry) Update() {
	for _, m := range r.modules {
		if err := m.Update(); err != nil {
			r.log.Warn("module update failed", zap.String("module", m.Name()), zap.Error(err))
		}
	}
}

func (r *ModuleRegistry) Modules() []Module { return r.modules }
