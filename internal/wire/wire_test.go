package wire_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"hopper/internal/wire"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	secret := []byte("shared-secret")

	writer := wire.NewWriter(&buf, secret)
	payloads := [][]byte{
		[]byte("first"),
		[]byte(""),
		[]byte("third frame with spaces"),
	}
	for _, payload := range payloads {
		if err := writer.WriteFrame(payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	reader := wire.NewReader(&buf, secret)
	for idx, want := range payloads {
		got, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", idx, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", idx, got, want)
		}
	}
	if _, err := reader.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestCorruptFrameIsDiscarded(t *testing.T) {
	var buf bytes.Buffer
	secret := []byte("shared-secret")
	writer := wire.NewWriter(&buf, secret)

	if err := writer.WriteFrame([]byte("good one")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// Tampered frame: valid framing, wrong digest.
	buf.WriteString("deadbeef 4\nevil")
	if err := writer.WriteFrame([]byte("good two")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	reader := wire.NewReader(&buf, secret)
	first, err := reader.ReadFrame()
	if err != nil || string(first) != "good one" {
		t.Fatalf("first frame = %q, %v", first, err)
	}
	second, err := reader.ReadFrame()
	if err != nil || string(second) != "good two" {
		t.Fatalf("tampered frame should be skipped, got %q, %v", second, err)
	}
	if _, err := reader.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestWrongSecretRejectsEverything(t *testing.T) {
	var buf bytes.Buffer
	writer := wire.NewWriter(&buf, []byte("secret-a"))
	if err := writer.WriteFrame([]byte("payload")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	reader := wire.NewReader(&buf, []byte("secret-b"))
	if _, err := reader.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("mismatched secret should drain to EOF, got %v", err)
	}
}

func TestReportRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	secret := []byte("s")
	writer := wire.NewWriter(&buf, secret)

	want := wire.Report{
		Path:       "/inbox/pkg.zip",
		Outcome:    "validated",
		Message:    "attempt 7",
		OccurredAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	if err := writer.WriteReport(want); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	got, err := wire.NewReader(&buf, secret).ReadReport()
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if got != want {
		t.Fatalf("report = %+v, want %+v", got, want)
	}
}
