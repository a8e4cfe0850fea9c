package meshtastic

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"meshbridge/internal/transport"
)

// Meshtastic stream framing: 0x94 0xC3, big-endian uint16 length, payload.
var frameHeader = [2]byte{0x94, 0xC3}

func encodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint16 {
		return nil, fmt.Errorf("payload too large: %d", len(payload))
	}

	frame := make([]byte, 4+len(payload))
	frame[0] = frameHeader[0]
	frame[1] = frameHeader[1]
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
	copy(frame[4:], payload)

	return frame, nil
}

// readFrame resyncs to the next frame header and returns its payload.
func readFrame(ctx context.Context, stream transport.Stream) ([]byte, error) {
	if err := resyncToHeader(ctx, stream); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if err := stream.ReadFull(ctx, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	ln := int(binary.BigEndian.Uint16(lenBuf[:]))
	if ln <= 0 {
		return nil, fmt.Errorf("invalid frame length: %d", ln)
	}

	payload := make([]byte, ln)
	if err := stream.ReadFull(ctx, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}

func resyncToHeader(ctx context.Context, stream transport.Stream) error {
	buf := make([]byte, 1)
	for {
		if err := stream.ReadFull(ctx, buf); err != nil {
			return fmt.Errorf("read frame header byte 1: %w", err)
		}
		if buf[0] != frameHeader[0] {
			continue
		}
		if err := stream.ReadFull(ctx, buf); err != nil {
			return fmt.Errorf("read frame header byte 2: %w", err)
		}
		if buf[0] == frameHeader[1] {
			return nil
		}
	}
}
