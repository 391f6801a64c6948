// Package matrix holds the year-long hour grid a user paints with tasks: the
// cell map, the task registry, the interactive selection session with its undo
// stack, and the analytics projected from them.
package matrix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DaysPerYear  = 366
	HoursPerDay  = 24
	WeeksPerYear = 52
)

// ErrInvalidCellKey is returned when a key lies outside the grid or cannot be parsed.
var ErrInvalidCellKey = errors.New("invalid cell key")

// CellKey addresses one hour of one day in the grid.
type CellKey struct {
	Day  int
	Hour int
}

// Key builds a CellKey.
func Key(day, hour int) CellKey {
	return CellKey{Day: day, Hour: hour}
}

// Valid reports whether k lies inside the grid.
func (k CellKey) Valid() bool {
	return k.Day >= 0 && k.Day < DaysPerYear && k.Hour >= 0 && k.Hour < HoursPerDay
}

// String renders the canonical "{day}-{hour}" form.
func (k CellKey) String() string {
	return strconv.Itoa(k.Day) + "-" + strconv.Itoa(k.Hour)
}

// Week returns the zero-based week bucket of the key's day.
func (k CellKey) Week() int {
	return k.Day / 7
}

// MarshalText lets CellKey act as a JSON object key.
func (k CellKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the canonical form.
func (k *CellKey) UnmarshalText(b []byte) error {
	parsed, err := ParseCellKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseCellKey parses "{day}-{hour}" and rejects keys outside the grid.
func ParseCellKey(s string) (CellKey, error) {
	dayStr, hourStr, ok := strings.Cut(s, "-")
	if !ok {
		return CellKey{}, fmt.Errorf("%w: %q", ErrInvalidCellKey, s)
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return CellKey{}, fmt.Errorf("%w: %q", ErrInvalidCellKey, s)
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return CellKey{}, fmt.Errorf("%w: %q", ErrInvalidCellKey, s)
	}
	k := CellKey{Day: day, Hour: hour}
	if !k.Valid() {
		return CellKey{}, fmt.Errorf("%w: %q", ErrInvalidCellKey, s)
	}
	return k, nil
}
