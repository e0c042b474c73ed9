package wire

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// maxFrameSize bounds a single payload so a corrupt length field cannot
// force an unbounded allocation.
const maxFrameSize = 16 << 20

// Writer emits authenticated frames: "<hex-digest> <byte-length>\n"
// followed by exactly byte-length payload bytes. The digest is an
// HMAC-SHA256 over the payload using the shared secret.
type Writer struct {
	w      io.Writer
	secret []byte
}

// NewWriter binds a writer to the shared secret.
func NewWriter(w io.Writer, secret []byte) *Writer {
	return &Writer{w: w, secret: secret}
}

// WriteFrame frames and sends one payload.
func (w *Writer) WriteFrame(payload []byte) error {
	digest := computeDigest(w.secret, payload)
	if _, err := fmt.Fprintf(w.w, "%s %d\n", digest, len(payload)); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// Reader consumes authenticated frames. Frames whose digest does not match
// are silently discarded and reading continues with the next frame;
// ReadFrame returns io.EOF once the transport is exhausted.
type Reader struct {
	r      *bufio.Reader
	secret []byte
}

// NewReader binds a reader to the shared secret.
func NewReader(r io.Reader, secret []byte) *Reader {
	return &Reader{r: bufio.NewReader(r), secret: secret}
}

// ReadFrame returns the next authenticated payload.
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		header, err := r.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && strings.TrimSpace(header) == "" {
				return nil, io.EOF
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read frame header: %w", err)
		}

		digest, lengthRaw, found := strings.Cut(strings.TrimSuffix(header, "\n"), " ")
		if !found {
			continue
		}
		length, err := strconv.Atoi(strings.TrimSpace(lengthRaw))
		if err != nil || length < 0 || length > maxFrameSize {
			continue
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(r.r, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read frame payload: %w", err)
		}

		if hmac.Equal([]byte(computeDigest(r.secret, payload)), []byte(digest)) {
			return payload, nil
		}
		// Digest mismatch: drop the frame and resynchronize on the next
		// header line.
	}
}

func computeDigest(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Report is the operator-facing record of one processed path.
type Report struct {
	Path       string    `json:"path"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WriteReport frames one JSON-encoded report.
func (w *Writer) WriteReport(report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return w.WriteFrame(payload)
}

// ReadReport returns the next authenticated report.
func (r *Reader) ReadReport() (Report, error) {
	payload, err := r.ReadFrame()
	if err != nil {
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}
