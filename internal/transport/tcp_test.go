package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func TestTCPStreamConnectReadWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		buf := make([]byte, 5)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		_, _ = conn.Write(buf)
	}()

	stream := NewTCPStream(ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Write(ctx, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	echo := make([]byte, 5)
	if err := stream.ReadFull(ctx, echo); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(echo) != "hello" {
		t.Fatalf("echo mismatch: %q", echo)
	}
}

func TestTCPStreamRejectsEmptyAddress(t *testing.T) {
	stream := NewTCPStream("")
	if err := stream.Connect(context.Background()); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestTCPStreamReadBeforeConnect(t *testing.T) {
	stream := NewTCPStream("127.0.0.1:1")
	if err := stream.ReadFull(context.Background(), make([]byte, 1)); err == nil {
		t.Fatal("expected error before connect")
	}
}

func TestTCPStreamCloseIdempotent(t *testing.T) {
	stream := NewTCPStream("127.0.0.1:1")
	if err := stream.Close(); err != nil {
		t.Fatalf("close on unconnected stream: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
