package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day without date or timezone
type ClockTime struct {
	Hour   int
	Minute int
}

// NewClockTime validates and builds a ClockTime
func NewClockTime(hour, minute int) (ClockTime, error) {
	if hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("hour out of range: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("minute out of range: %d", minute)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// ParseClockTime parses "H:MM" or "HH:MM"
func ParseClockTime(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 || !allDigits(hh) || !allDigits(mm) {
		return ClockTime{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	return NewClockTime(hour, minute)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ClockTimeOf extracts the wall-clock hour and minute of t as written, without
// converting it to another location.
func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}
}

// String formats the time as zero padded "HH:MM"
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns minutes since midnight
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Add shifts the time by delta minutes, wrapping around midnight
func (c ClockTime) Add(delta int) ClockTime {
	total := (c.Minutes() + delta) % (24 * 60)
	if total < 0 {
		total += 24 * 60
	}
	return ClockTime{Hour: total / 60, Minute: total % 60}
}

// MarshalText implements encoding.TextMarshaler
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ScheduleEntry is one pickup on the day's transport schedule
type ScheduleEntry struct {
	ID            int64
	SubjectName   string
	ScheduledTime ClockTime
}

// PendingEdit is the single in-progress time change opened in the editor
type PendingEdit struct {
	TargetEntryID int64
	ProposedTime  ClockTime
}

// AuthState is the derived session status
type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticated
)

func (s AuthState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Status is a snapshot of the session as seen by routing code
type Status struct {
	State   AuthState
	Loading bool
}
