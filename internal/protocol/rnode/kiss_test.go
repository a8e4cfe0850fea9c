package rnode

import (
	"bytes"
	"context"
	"testing"
)

type memStream struct {
	input *bytes.Buffer
}

func newMemStream(input []byte) *memStream {
	return &memStream{input: bytes.NewBuffer(input)}
}

func (m *memStream) Name() string                  { return "mem" }
func (m *memStream) Path() string                  { return "mem://test" }
func (m *memStream) Connect(context.Context) error { return nil }
func (m *memStream) Close() error                  { return nil }

func (m *memStream) ReadFull(_ context.Context, buf []byte) error {
	_, err := m.input.Read(buf)

	return err
}

func (m *memStream) Write(context.Context, []byte) error { return nil }

func TestKISSEscapeWrapsPayload(t *testing.T) {
	frame := kissEscape([]byte("hi"))
	want := []byte{kissFEND, kissCmdData, 'h', 'i', kissFEND}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame mismatch: %x", frame)
	}
}

func TestKISSEscapeSpecialBytes(t *testing.T) {
	frame := kissEscape([]byte{kissFEND, kissFESC})
	want := []byte{kissFEND, kissCmdData, kissFESC, kissTFEND, kissFESC, kissTFESC, kissFEND}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame mismatch: %x", frame)
	}
}

func TestReadKISSFrameRoundTrip(t *testing.T) {
	payload := []byte("hello mesh")
	got, err := readKISSFrame(context.Background(), newMemStream(kissEscape(payload)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q", got)
	}
}

func TestReadKISSFrameUnescapes(t *testing.T) {
	payload := []byte{0x01, kissFEND, 0x02, kissFESC, 0x03}
	got, err := readKISSFrame(context.Background(), newMemStream(kissEscape(payload)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %x", got)
	}
}

func TestReadKISSFrameSkipsNonDataFrames(t *testing.T) {
	// A TX-delay command frame followed by a data frame.
	input := []byte{kissFEND, 0x01, 0x20, kissFEND}
	input = append(input, kissEscape([]byte("data"))...)

	got, err := readKISSFrame(context.Background(), newMemStream(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("payload mismatch: %q", got)
	}
}
