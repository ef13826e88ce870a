package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted on the wire.
const DateLayout = "2006-01-02"

// Shift identifies one of the two daily exam sittings.
type Shift string

const (
	ShiftFirst  Shift = "FIRST"
	ShiftSecond Shift = "SECOND"
)

// Shifts lists every shift in chronological order.
var Shifts = []Shift{ShiftFirst, ShiftSecond}

// Order returns the position of the shift within a day, 0 when unknown.
func (s Shift) Order() int {
	switch s {
	case ShiftFirst:
		return 1
	case ShiftSecond:
		return 2
	default:
		return 0
	}
}

// Valid reports whether the shift is one of the known values.
func (s Shift) Valid() bool {
	return s.Order() > 0
}

// ParseShift accepts the canonical names plus the numeric 1/2 form.
func ParseShift(raw string) (Shift, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "1", string(ShiftFirst):
		return ShiftFirst, nil
	case "2", string(ShiftSecond):
		return ShiftSecond, nil
	default:
		return "", fmt.Errorf("unknown shift %q", raw)
	}
}

// ParseDate parses a wire date into a UTC midnight time.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(t), nil
}

// DateOnly truncates t to UTC midnight of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Slot is a (date, shift) pair. Dates are normalised so Slot is usable as a map key.
type Slot struct {
	Date  time.Time
	Shift Shift
}

// NewSlot builds a normalised slot.
func NewSlot(date time.Time, shift Shift) Slot {
	return Slot{Date: DateOnly(date), Shift: shift}
}

// SlotOf converts nullable column values into a slot. ok is false unless both are set.
func SlotOf(date *time.Time, shift *Shift) (Slot, bool) {
	if date == nil || shift == nil || !shift.Valid() {
		return Slot{}, false
	}
	return NewSlot(*date, *shift), true
}

// Compare orders slots chronologically: -1, 0 or 1.
func (s Slot) Compare(other Slot) int {
	switch {
	case s.Date.Before(other.Date):
		return -1
	case s.Date.After(other.Date):
		return 1
	}
	switch a, b := s.Shift.Order(), other.Shift.Order(); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Before reports whether s happens strictly earlier than other.
func (s Slot) Before(other Slot) bool {
	return s.Compare(other) < 0
}

// DatePtr returns the slot date as a column value.
func (s Slot) DatePtr() *time.Time {
	d := s.Date
	return &d
}

// ShiftPtr returns the slot shift as a column value.
func (s Slot) ShiftPtr() *Shift {
	sh := s.Shift
	return &sh
}

func (s Slot) String() string {
	return s.Date.Format(DateLayout) + "/" + string(s.Shift)
}

// StudentAreaKey indexes per-student assignment history inside one area.
type StudentAreaKey struct {
	DNI    string
	AreaID int64
}

// SlotAreaKey buckets exam numbers sharing a slot and an area.
type SlotAreaKey struct {
	Slot   Slot
	AreaID int64
}
