package sink

import (
	"fmt"
	"os"

	"github.com/slipstreamco/slipcast/internal/bus"
	"github.com/slipstreamco/slipcast/internal/config"
)

// Manager builds the configured sinks and wires each onto the bus.
type Manager struct {
	sinks map[string]Sink
}

func NewManager(cfg config.SinksConfig, b *bus.Bus) (*Manager, error) {
	return newManager(cfg, b, defaultBotFactory)
}

func newManager(cfg config.SinksConfig, b *bus.Bus, factory BotFactory) (*Manager, error) {
	m := &Manager{sinks: make(map[string]Sink)}

	if cfg.Console.Enabled {
		m.register(NewConsole(os.Stdout), b)
	}

	if cfg.Telegram.Enabled {
		tg, err := NewTelegramWithFactory(cfg.Telegram, factory)
		if err != nil {
			return nil, fmt.Errorf("init telegram sink: %w", err)
		}
		m.register(tg, b)
	}

	return m, nil
}

func (m *Manager) register(s Sink, b *bus.Bus) {
	m.sinks[s.Name()] = s
	b.SubscribeOutbound(s.Name(), s.Deliver)
}

// Enabled lists the names of active sinks.
func (m *Manager) Enabled() []string {
	names := make([]string, 0, len(m.sinks))
	for name := range m.sinks {
		names = append(names, name)
	}
	return names
}
