package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"meshbridge/internal/bridge"
)

func testSource() bridge.CommandSource {
	return bridge.CommandSource{EndpointID: "ep-1", Sender: 42, ChannelIndex: 0}
}

func TestDispatcherIsCommand(t *testing.T) {
	d := NewDispatcher(nil, Config{Prefix: "#"})

	cases := map[string]bool{
		"#ping":        true,
		"  #ping args": true,
		"#":            false,
		"ping":         false,
		"hello #tag":   false,
		"":             false,
	}
	for text, want := range cases {
		if got := d.IsCommand(text); got != want {
			t.Errorf("IsCommand(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestDispatcherRunsHandlerWithArgs(t *testing.T) {
	d := NewDispatcher(nil, Config{})
	d.Register(Command{
		Name: "echo",
		Run: func(_ context.Context, req Request) (string, error) {
			return strings.Join(req.Args, " "), nil
		},
	})

	reply := d.Dispatch(context.Background(), testSource(), "#echo hello world")
	if reply != "hello world" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestDispatcherUnknownCommandHints(t *testing.T) {
	d := NewDispatcher(nil, Config{})

	reply := d.Dispatch(context.Background(), testSource(), "#nosuch")
	if !strings.Contains(reply, "#help") {
		t.Fatalf("expected help hint, got %q", reply)
	}
}

func TestDispatcherDisabledBehavesLikeUnknown(t *testing.T) {
	d := NewDispatcher(nil, Config{Enabled: []string{"ping"}})
	d.Register(Command{Name: "ping", Run: func(context.Context, Request) (string, error) {
		return "pong", nil
	}})
	d.Register(Command{Name: "secret", Run: func(context.Context, Request) (string, error) {
		return "leaked", nil
	}})

	if reply := d.Dispatch(context.Background(), testSource(), "#ping"); reply != "pong" {
		t.Fatalf("enabled command should run, got %q", reply)
	}
	reply := d.Dispatch(context.Background(), testSource(), "#secret")
	if strings.Contains(reply, "leaked") {
		t.Fatal("disabled command must not run")
	}
	if !strings.Contains(reply, "Unknown command") {
		t.Fatalf("disabled command should look unknown, got %q", reply)
	}
}

func TestDispatcherRateLimitNotice(t *testing.T) {
	d := NewDispatcher(nil, Config{RateLimit: 1})
	d.Register(Command{Name: "ping", Run: func(context.Context, Request) (string, error) {
		return "pong", nil
	}})

	if reply := d.Dispatch(context.Background(), testSource(), "#ping"); reply != "pong" {
		t.Fatalf("first call should pass, got %q", reply)
	}
	reply := d.Dispatch(context.Background(), testSource(), "#ping")
	if !strings.Contains(reply, "Rate limit") {
		t.Fatalf("expected rate limit notice, got %q", reply)
	}
}

func TestDispatcherExpensiveCommandsUseStricterLedger(t *testing.T) {
	d := NewDispatcher(nil, Config{RateLimit: 10, AssistantRateLimit: 1})
	d.Register(Command{
		Name:      "ai",
		Expensive: true,
		Run: func(context.Context, Request) (string, error) {
			return "answer", nil
		},
	})

	if reply := d.Dispatch(context.Background(), testSource(), "#ai hi"); reply != "answer" {
		t.Fatalf("first assistant call should pass, got %q", reply)
	}
	reply := d.Dispatch(context.Background(), testSource(), "#ai again")
	if !strings.Contains(reply, "Assistant rate limit") {
		t.Fatalf("expected assistant rate limit notice, got %q", reply)
	}
}

func TestDispatcherTimeoutReply(t *testing.T) {
	d := NewDispatcher(nil, Config{HandlerTimeout: 20 * time.Millisecond})
	d.Register(Command{
		Name: "slow",
		Run: func(ctx context.Context, _ Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})

	reply := d.Dispatch(context.Background(), testSource(), "#slow")
	if !strings.Contains(reply, "timed out") {
		t.Fatalf("expected timeout reply, got %q", reply)
	}
}

func TestDispatcherHandlerErrorReply(t *testing.T) {
	d := NewDispatcher(nil, Config{})
	d.Register(Command{
		Name: "broken",
		Run: func(context.Context, Request) (string, error) {
			return "", errors.New("backend down")
		},
	})

	reply := d.Dispatch(context.Background(), testSource(), "#broken")
	if !strings.Contains(reply, "failed") || !strings.Contains(reply, "backend down") {
		t.Fatalf("expected failure reply, got %q", reply)
	}
}

func TestDispatcherHelpListsEnabledOnly(t *testing.T) {
	d := NewDispatcher(nil, Config{Enabled: []string{"ping", "help"}})
	registry := bridge.NewRegistry()
	RegisterBuiltins(d, registry, nil, nil, nil, nil)

	reply := d.Dispatch(context.Background(), testSource(), "#help")
	if !strings.Contains(reply, "#ping") {
		t.Fatalf("help should list ping, got %q", reply)
	}
	if strings.Contains(reply, "#weather") {
		t.Fatalf("help must not list disabled commands, got %q", reply)
	}
}
