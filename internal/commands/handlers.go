package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"meshbridge/internal/bridge"
	"meshbridge/internal/domain"
)

// WeatherService answers a one-line weather report for a place.
type WeatherService interface {
	Current(ctx context.Context, place string) (string, error)
}

// AssistantService answers a free-form prompt. Calls are expensive and
// gated by the stricter ledger.
type AssistantService interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Notifier raises an operator-side notification.
type Notifier interface {
	Notify(title, body string) error
}

// RegisterBuiltins wires the standard command vocabulary. Nil services
// register a command that reports itself as unavailable.
func RegisterBuiltins(d *Dispatcher, registry *bridge.Registry, nodes *domain.NodeStore, weather WeatherService, assistant AssistantService, notifier Notifier) {
	startedAt := time.Now()

	d.Register(Command{
		Name: "ping",
		Help: "liveness check",
		Run: func(_ context.Context, req Request) (string, error) {
			return fmt.Sprintf("Pong! Bridge up %s.", time.Since(startedAt).Round(time.Second)), nil
		},
	})

	d.Register(Command{
		Name: "help",
		Help: "list commands",
		Run: func(_ context.Context, _ Request) (string, error) {
			return d.helpText(), nil
		},
	})

	d.Register(Command{
		Name: "time",
		Help: "bridge clock",
		Run: func(_ context.Context, _ Request) (string, error) {
			return time.Now().Format("Mon 15:04:05 MST"), nil
		},
	})

	d.Register(Command{
		Name: "status",
		Help: "endpoint summary",
		Run: func(_ context.Context, _ Request) (string, error) {
			endpoints := registry.List()
			if len(endpoints) == 0 {
				return "No endpoints connected.", nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%d endpoint(s):", len(endpoints))
			for _, ep := range endpoints {
				c := ep.Counters()
				label := ep.Name
				if label == "" {
					label = ep.Family
				}
				fmt.Fprintf(&b, " %s=%s rx:%d tx:%d err:%d;", label, ep.State(), c.Received, c.Sent, c.Errors)
			}

			return strings.TrimSuffix(b.String(), ";"), nil
		},
	})

	d.Register(Command{
		Name: "nodes",
		Help: "recently heard nodes",
		Run: func(_ context.Context, _ Request) (string, error) {
			recent := nodes.Recent(5)
			if len(recent) == 0 {
				return "No nodes heard yet.", nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%d node(s) known. Latest:", nodes.Len())
			for _, n := range recent {
				name := n.LongName
				if name == "" {
					name = n.ShortName
				}
				if name == "" {
					name = fmt.Sprintf("!%08x", n.Num)
				}
				fmt.Fprintf(&b, " %s;", name)
			}

			return strings.TrimSuffix(b.String(), ";"), nil
		},
	})

	d.Register(Command{
		Name: "weather",
		Help: "weather <place>",
		Run: func(ctx context.Context, req Request) (string, error) {
			if weather == nil {
				return "Weather lookups are not configured.", nil
			}
			if len(req.Args) == 0 {
				return "Usage: weather <place>", nil
			}

			return weather.Current(ctx, strings.Join(req.Args, " "))
		},
	})

	d.Register(Command{
		Name:      "ai",
		Help:      "ai <prompt>",
		Expensive: true,
		Run: func(ctx context.Context, req Request) (string, error) {
			if assistant == nil {
				return "Assistant is not configured.", nil
			}
			if len(req.Args) == 0 {
				return "Usage: ai <prompt>", nil
			}

			return assistant.Ask(ctx, strings.Join(req.Args, " "))
		},
	})

	d.Register(Command{
		Name: "notify",
		Help: "notify <text>",
		Run: func(_ context.Context, req Request) (string, error) {
			if notifier == nil {
				return "Notifications are not configured.", nil
			}
			if len(req.Args) == 0 {
				return "Usage: notify <text>", nil
			}
			if err := notifier.Notify("Mesh notification", strings.Join(req.Args, " ")); err != nil {
				return "", errors.New("notification delivery failed")
			}

			return "Notification sent.", nil
		},
	})
}
