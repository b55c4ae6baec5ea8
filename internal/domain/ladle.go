package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Ladle identifiers are the natural key joining chemical analyses,
// mechanical tests, and pipe records. The format is the ladle sequence
// number concatenated with the test date as DDMMYYYY, with no separators:
//
//	sequence=47, date=2025-01-13 -> "4713012025"
//
// The sequence is never zero-padded; decoding relies on the date suffix
// always being exactly 8 digits, so the identifier is reversible for any
// sequence width. Existing stored keys depend on this layout, so it must
// not change.

// Year bounds accepted by the codec. Dates outside this window cannot
// appear in plant records and usually indicate a mangled identifier.
const (
	minLadleYear = 2020
	maxLadleYear = 2100
)

// LadleID is the decoded form of a ladle identifier.
type LadleID struct {
	Sequence int `json:"sequence"`
	Day      int `json:"day"`
	Month    int `json:"month"`
	Year     int `json:"year"`
}

// String encodes the identifier back to its string form.
func (l LadleID) String() string {
	return fmt.Sprintf("%d%02d%02d%04d", l.Sequence, l.Day, l.Month, l.Year)
}

// Date returns the identifier's date component.
func (l LadleID) Date() time.Time {
	return time.Date(l.Year, time.Month(l.Month), l.Day, 0, 0, 0, 0, time.UTC)
}

// EncodeLadleID builds the composite identifier from a sequence number and
// a test date. Returns ErrInvalidInput if the sequence is below 1 or the
// date falls outside the accepted year window.
func EncodeLadleID(sequence int, date time.Time) (string, error) {
	if sequence < 1 {
		return "", fmt.Errorf("ladle sequence %d must be >= 1: %w", sequence, ErrInvalidInput)
	}
	if date.Year() < minLadleYear || date.Year() > maxLadleYear {
		return "", fmt.Errorf("ladle date year %d outside %d..%d: %w",
			date.Year(), minLadleYear, maxLadleYear, ErrInvalidInput)
	}
	id := LadleID{
		Sequence: sequence,
		Day:      date.Day(),
		Month:    int(date.Month()),
		Year:     date.Year(),
	}
	return id.String(), nil
}

// DecodeLadleID parses a composite identifier. The last 8 characters are
// read as DDMMYYYY and the remainder as the sequence number. Returns
// ErrInvalidFormat if the string is too short, non-numeric, or any
// component falls outside its valid range.
func DecodeLadleID(identifier string) (LadleID, error) {
	// Minimum is a 1-digit sequence plus the 8-digit date suffix.
	if len(identifier) < 9 {
		return LadleID{}, fmt.Errorf("ladle identifier %q too short: %w", identifier, ErrInvalidFormat)
	}

	split := len(identifier) - 8
	sequence, err := strconv.Atoi(identifier[:split])
	if err != nil {
		return LadleID{}, fmt.Errorf("ladle sequence %q: %w", identifier[:split], ErrInvalidFormat)
	}
	day, err := strconv.Atoi(identifier[split : split+2])
	if err != nil {
		return LadleID{}, fmt.Errorf("ladle day %q: %w", identifier[split:split+2], ErrInvalidFormat)
	}
	month, err := strconv.Atoi(identifier[split+2 : split+4])
	if err != nil {
		return LadleID{}, fmt.Errorf("ladle month %q: %w", identifier[split+2:split+4], ErrInvalidFormat)
	}
	year, err := strconv.Atoi(identifier[split+4:])
	if err != nil {
		return LadleID{}, fmt.Errorf("ladle year %q: %w", identifier[split+4:], ErrInvalidFormat)
	}

	if sequence < 1 {
		return LadleID{}, fmt.Errorf("ladle sequence %d must be >= 1: %w", sequence, ErrInvalidFormat)
	}
	if day < 1 || day > 31 {
		return LadleID{}, fmt.Errorf("ladle day %d outside 1..31: %w", day, ErrInvalidFormat)
	}
	if month < 1 || month > 12 {
		return LadleID{}, fmt.Errorf("ladle month %d outside 1..12: %w", month, ErrInvalidFormat)
	}
	if year < minLadleYear || year > maxLadleYear {
		return LadleID{}, fmt.Errorf("ladle year %d outside %d..%d: %w",
			year, minLadleYear, maxLadleYear, ErrInvalidFormat)
	}

	return LadleID{Sequence: sequence, Day: day, Month: month, Year: year}, nil
}

// ValidLadleID reports whether the identifier decodes cleanly.
func ValidLadleID(identifier string) bool {
	_, err := DecodeLadleID(identifier)
	return err == nil
}

// NextLadleSequence returns the sequence number to assign to the next
// ladle of a day: 1 when no record exists yet for that date, otherwise
// one past the existing maximum. The max lookup itself belongs to the
// repository; concurrent creators must be serialized there, this is
// arithmetic only.
func NextLadleSequence(existingMax *int) int {
	if existingMax == nil {
		return 1
	}
	return *existingMax + 1
}
