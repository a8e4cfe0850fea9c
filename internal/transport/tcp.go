package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const defaultDialTimeout = 10 * time.Second

// TCPStream talks to a radio (or a radio daemon) over a TCP socket.
type TCPStream struct {
	addr string

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
}

func NewTCPStream(addr string) *TCPStream {
	return &TCPStream{addr: addr}
}

func (t *TCPStream) Name() string {
	return "tcp"
}

func (t *TCPStream) Path() string {
	return t.addr
}

func (t *TCPStream) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	if t.addr == "" {
		return errors.New("tcp address is empty")
	}

	dialer := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("dial %q: %w", t.addr, err)
	}
	t.conn = conn

	return nil
}

func (t *TCPStream) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil

	return err
}

func (t *TCPStream) ReadFull(ctx context.Context, buf []byte) error {
	conn, err := t.currentConn()
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}

	return readFull(ctx, conn, buf)
}

func (t *TCPStream) Write(ctx context.Context, buf []byte) error {
	conn, err := t.currentConn()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
	}

	return writeFull(ctx, conn, buf)
}

func (t *TCPStream) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, errors.New("tcp stream is not connected")
	}

	return t.conn, nil
}
