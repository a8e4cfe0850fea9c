package transport

import (
	"context"
	"io"
)

// Stream is a raw byte transport to one radio device. Framing is owned by
// the protocol adapter on top, because it differs per radio family.
//
// Path identifies the physical target (device path, host:port, command
// line) and is the key used to reject duplicate endpoint registrations.
type Stream interface {
	Name() string
	Path() string
	Connect(ctx context.Context) error
	Close() error
	// ReadFull fills buf completely or returns an error.
	ReadFull(ctx context.Context, buf []byte) error
	// Write writes buf completely or returns an error.
	Write(ctx context.Context, buf []byte) error
}

func readFull(ctx context.Context, r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}

	return nil
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		written += n
	}

	return nil
}
