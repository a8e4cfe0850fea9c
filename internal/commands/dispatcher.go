package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"meshbridge/internal/bridge"
)

const (
	DefaultPrefix             = "#"
	DefaultRateLimit          = 5
	DefaultAssistantRateLimit = 2
	defaultHandlerTimeout     = 15 * time.Second
)

// Command is one in-band command word.
type Command struct {
	Name string
	Help string
	// Expensive commands call an external assistant service and are gated
	// by a second, stricter ledger.
	Expensive bool
	Run       func(ctx context.Context, req Request) (string, error)
}

// Request is what a command handler receives.
type Request struct {
	Source bridge.CommandSource
	Args   []string
}

// Config tunes the dispatcher.
type Config struct {
	Prefix             string
	Enabled            []string // empty means every registered command
	RateLimit          int
	AssistantRateLimit int
	HandlerTimeout     time.Duration
}

// Dispatcher parses `prefix word args`, applies the allow-list and the
// rate ledgers, and runs the matching handler. It implements
// bridge.CommandDispatcher.
type Dispatcher struct {
	logger    *slog.Logger
	prefix    string
	commands  map[string]Command
	enabled   map[string]bool
	limiter   *RateLimiter
	aiLimiter *RateLimiter
	timeout   time.Duration
}

func NewDispatcher(logger *slog.Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default().With("component", "commands")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.AssistantRateLimit <= 0 {
		cfg.AssistantRateLimit = DefaultAssistantRateLimit
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}

	var enabled map[string]bool
	if len(cfg.Enabled) > 0 {
		enabled = make(map[string]bool, len(cfg.Enabled))
		for _, name := range cfg.Enabled {
			enabled[strings.ToLower(strings.TrimSpace(name))] = true
		}
	}

	return &Dispatcher{
		logger:    logger,
		prefix:    cfg.Prefix,
		commands:  make(map[string]Command),
		enabled:   enabled,
		limiter:   NewRateLimiter(cfg.RateLimit),
		aiLimiter: NewRateLimiter(cfg.AssistantRateLimit),
		timeout:   cfg.HandlerTimeout,
	}
}

// Register adds a command. Later registrations with the same name win.
func (d *Dispatcher) Register(cmd Command) {
	d.commands[strings.ToLower(cmd.Name)] = cmd
}

// IsCommand reports whether trimmed text starts with the command prefix.
func (d *Dispatcher) IsCommand(text string) bool {
	trimmed := strings.TrimSpace(text)

	return strings.HasPrefix(trimmed, d.prefix) && len(trimmed) > len(d.prefix)
}

// Dispatch runs the command in text and returns the reply to deliver back
// on the source endpoint. Empty reply means silence.
func (d *Dispatcher) Dispatch(ctx context.Context, src bridge.CommandSource, text string) string {
	trimmed := strings.TrimSpace(text)
	if !d.IsCommand(trimmed) {
		return ""
	}

	fields := strings.Fields(strings.TrimPrefix(trimmed, d.prefix))
	if len(fields) == 0 {
		return d.helpHint()
	}
	word := strings.ToLower(fields[0])
	args := fields[1:]

	if !d.limiter.Allow(src.Sender) {
		d.logger.Info("command rate limited", "sender", src.Sender, "command", word)
		return "Rate limit exceeded. Please wait a minute before trying again."
	}

	cmd, ok := d.lookup(word)
	if !ok {
		return d.helpHint()
	}

	if cmd.Expensive && !d.aiLimiter.Allow(src.Sender) {
		d.logger.Info("assistant rate limited", "sender", src.Sender, "command", word)
		return "Assistant rate limit exceeded. Please wait a minute before trying again."
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	reply, err := cmd.Run(runCtx, Request{Source: src, Args: args})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			d.logger.Warn("command timed out", "command", word, "sender", src.Sender)
			return fmt.Sprintf("%s%s timed out, please try again.", d.prefix, word)
		}
		d.logger.Warn("command failed", "command", word, "sender", src.Sender, "error", err)

		return fmt.Sprintf("%s%s failed: %s", d.prefix, word, err)
	}

	return reply
}

// lookup resolves a word; disabled commands behave exactly like unknown
// ones.
func (d *Dispatcher) lookup(word string) (Command, bool) {
	cmd, ok := d.commands[word]
	if !ok {
		return Command{}, false
	}
	if d.enabled != nil && !d.enabled[word] {
		return Command{}, false
	}

	return cmd, true
}

func (d *Dispatcher) helpHint() string {
	return fmt.Sprintf("Unknown command. Send %shelp for the command list.", d.prefix)
}

// helpText lists enabled commands alphabetically.
func (d *Dispatcher) helpText() string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		if d.enabled != nil && !d.enabled[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Commands:")
	for _, name := range names {
		cmd := d.commands[name]
		b.WriteString(fmt.Sprintf(" %s%s", d.prefix, cmd.Name))
		if cmd.Help != "" {
			b.WriteString(fmt.Sprintf(" (%s)", cmd.Help))
		}
	}

	return b.String()
}
