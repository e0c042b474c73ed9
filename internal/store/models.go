package store

import (
	"strings"
	"time"
)

// Point identifies one lifecycle stage of an attempt.
type Point string

const (
	PointCheckin    Point = "checkin"
	PointValidation Point = "validation"
	PointCheckout   Point = "checkout"
)

// ParsePoint converts a string into a known Point.
func ParsePoint(value string) (Point, bool) {
	normalized := Point(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case PointCheckin, PointValidation, PointCheckout:
		return normalized, true
	}
	return "", false
}

// Status is the severity of a recorded notice.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"

	// StatusServBegin and StatusServEnd bracket a pipeline run in the audit
	// trail. They are bookkeeping markers, never stage outcomes.
	StatusServBegin Status = "serv_begin"
	StatusServEnd   Status = "serv_end"
)

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusOK, StatusWarning, StatusError, StatusServBegin, StatusServEnd:
		return normalized, true
	}
	return "", false
}

// Attempt is one ingestion event for one archive.
type Attempt struct {
	ID                int64
	Checksum          string
	PackagePath       string
	WorkPath          string
	CreatedAt         time.Time
	IsValid           bool
	ValidationStarted *time.Time
	ValidationEnded   *time.Time
	QueuedForCheckout bool
	ArticlePkgID      *int64
}

// ArticlePkg is the bibliographic identity an attempt maps to. Many attempts
// may reference one ArticlePkg.
type ArticlePkg struct {
	ID             int64
	ArticleTitle   string
	JournalTitle   string
	ISSNPrint      string
	ISSNElectronic string
	Year           string
	Volume         string
	Number         string
	SupplVolume    string
	SupplNumber    string
}

// Checkpoint records the open/close window of one lifecycle point for one
// attempt. started/ended nil means the stage has not begun/finished.
type Checkpoint struct {
	ID        int64
	AttemptID int64
	Point     Point
	StartedAt *time.Time
	EndedAt   *time.Time
}

// IsOpen reports whether the checkpoint accepts notices.
func (c *Checkpoint) IsOpen() bool {
	return c != nil && c.StartedAt != nil && c.EndedAt == nil
}

// Notice is one message recorded inside a checkpoint. Append-only.
type Notice struct {
	ID           int64
	CheckpointID int64
	RecordedAt   time.Time
	Label        string
	Message      string
	Status       Status
}

// Stats aggregates attempt counts for operator tooling.
type Stats struct {
	Total   int
	Valid   int
	Invalid int
	Queued  int
}
