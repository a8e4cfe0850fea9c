package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const defaultSerialReadTimeout = 300 * time.Millisecond

// SerialStream talks to a radio over a local serial device.
type SerialStream struct {
	portName string
	baudRate int

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewSerialStream(portName string, baudRate int) *SerialStream {
	return &SerialStream{
		portName: portName,
		baudRate: baudRate,
	}
}

func (t *SerialStream) Name() string {
	return "serial"
}

func (t *SerialStream) Path() string {
	return t.portName
}

func (t *SerialStream) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	port, err := serial.Open(t.portName, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	// A finite read timeout keeps ReadFull responsive to context
	// cancellation between polls.
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	t.port = port

	return nil
}

func (t *SerialStream) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil

	return err
}

func (t *SerialStream) ReadFull(ctx context.Context, buf []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	return readFull(ctx, port, buf)
}

func (t *SerialStream) Write(ctx context.Context, buf []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return writeFull(ctx, port, buf)
}

func (t *SerialStream) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, errors.New("serial stream is not connected")
	}

	return t.port, nil
}
