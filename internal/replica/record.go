package replica

import (
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC layout this package writes. Rows written by
// other tools may use any RFC3339 form, so stored text is not assumed to sort
// chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one versioned row held by a replica.
type Record struct {
	ID        string
	Name      string
	Quantity  int64
	UpdatedAt time.Time
	DeletedAt *time.Time
	Version   int64
}

// IsTombstone reports whether the record is soft-deleted.
func (r *Record) IsTombstone() bool {
	return r != nil && r.DeletedAt != nil
}

// ChangedSince reports whether the record was updated or deleted strictly after t.
func (r *Record) ChangedSince(t time.Time) bool {
	return r.UpdatedAt.After(t) || (r.DeletedAt != nil && r.DeletedAt.After(t))
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.DeletedAt != nil {
		d := *r.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

// Equal reports whether two records hold the same id, content and version.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.ID != o.ID || r.Name != o.Name || r.Quantity != o.Quantity || r.Version != o.Version {
		return false
	}
	if !r.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if (r.DeletedAt == nil) != (o.DeletedAt == nil) {
		return false
	}
	return r.DeletedAt == nil || r.DeletedAt.Equal(*o.DeletedAt)
}

func (r *Record) String() string {
	deleted := "-"
	if r.DeletedAt != nil {
		deleted = FormatTime(*r.DeletedAt)
	}
	return fmt.Sprintf("%s(name=%s qty=%d v=%d updated=%s deleted=%s)",
		r.ID, r.Name, r.Quantity, r.Version, FormatTime(r.UpdatedAt), deleted)
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts any RFC3339 timestamp, including the millisecond form
// produced by other tools writing into the same tables.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
