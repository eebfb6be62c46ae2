// Package verifylog keeps the append-only audit trail of verification
// attempts and derives the dashboard views built on it.
package verifylog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the verdict of a verification attempt.
type Status string

const (
	StatusValid          Status = "Valid"
	StatusPartiallyValid Status = "Partially Valid"
	StatusInvalid        Status = "Invalid"
)

// UnknownCertificate is logged when the QR payload yielded no certificate id.
const UnknownCertificate = "Unknown"

// DefaultAlertLimit is the number of forgery alerts shown on the dashboard.
const DefaultAlertLimit = 5

// Entry records one verification attempt.
type Entry struct {
	ID            string    `json:"id"            bson:"_id"`
	CertificateID string    `json:"certificateId" bson:"certificateId"`
	Status        Status    `json:"status"        bson:"status"`
	Reason        string    `json:"reason"        bson:"reason"`
	Timestamp     time.Time `json:"timestamp"     bson:"timestamp"`
}

// NewEntry builds an entry stamped with a fresh id and the current time.
func NewEntry(certificateID string, status Status, reason string) *Entry {
	if certificateID == "" {
		certificateID = UnknownCertificate
	}
	return &Entry{
		ID:            uuid.NewString(),
		CertificateID: certificateID,
		Status:        status,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
	}
}

// DailyCount is the number of verdicts per status on one UTC day.
type DailyCount struct {
	Date           string `json:"date"`
	Valid          int    `json:"valid"`
	PartiallyValid int    `json:"partiallyValid"`
	Invalid        int    `json:"invalid"`
}

// Stats summarises the log.
type Stats struct {
	Total          int          `json:"total"`
	Valid          int          `json:"valid"`
	PartiallyValid int          `json:"partiallyValid"`
	Invalid        int          `json:"invalid"`
	Daily          []DailyCount `json:"daily"`
}

// Store persists verification log entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// Recent returns the latest entries, newest first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)
	// ForgeryAlerts returns the latest Invalid entries, newest first.
	ForgeryAlerts(ctx context.Context, limit int) ([]*Entry, error)
	// Stats counts verdicts overall and per day for the last days days.
	Stats(ctx context.Context, days int) (*Stats, error)
}

const dayLayout = "2006-01-02"

// newStats builds a Stats with one zeroed DailyCount per day, oldest first,
// ending on the UTC day of now.
func newStats(now time.Time, days int) (*Stats, map[string]*DailyCount) {
	s := &Stats{}
	byDay := make(map[string]*DailyCount, days)
	if days <= 0 {
		return s, byDay
	}
	s.Daily = make([]DailyCount, days)
	today := now.UTC().Truncate(24 * time.Hour)
	for i := 0; i < days; i++ {
		d := today.AddDate(0, 0, i-days+1)
		s.Daily[i].Date = d.Format(dayLayout)
		byDay[s.Daily[i].Date] = &s.Daily[i]
	}
	return s, byDay
}

func windowStart(now time.Time, days int) time.Time {
	return now.UTC().Truncate(24*time.Hour).AddDate(0, 0, 1-days)
}

func (s *Stats) add(status Status, n int) {
	s.Total += n
	switch status {
	case StatusValid:
		s.Valid += n
	case StatusPartiallyValid:
		s.PartiallyValid += n
	case StatusInvalid:
		s.Invalid += n
	}
}

func (d *DailyCount) add(status Status, n int) {
	switch status {
	case StatusValid:
		d.Valid += n
	case StatusPartiallyValid:
		d.PartiallyValid += n
	case StatusInvalid:
		d.Invalid += n
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultAlertLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}
