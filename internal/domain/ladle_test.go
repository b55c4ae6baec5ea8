package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLadleID(t *testing.T) {
	tests := []struct {
		name     string
		sequence int
		date     time.Time
		expected string
	}{
		{
			name:     "single digit sequence",
			sequence: 7,
			date:     time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
			expected: "705032025",
		},
		{
			name:     "two digit sequence",
			sequence: 47,
			date:     time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
			expected: "4713012025",
		},
		{
			name:     "three digit sequence not padded",
			sequence: 123,
			date:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			expected: "12331122024",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := EncodeLadleID(tt.sequence, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestEncodeLadleIDInvalid(t *testing.T) {
	date := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)

	_, err := EncodeLadleID(0, date)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = EncodeLadleID(-3, date)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = EncodeLadleID(1, time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = EncodeLadleID(1, time.Date(2101, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDecodeLadleID(t *testing.T) {
	id, err := DecodeLadleID("4713012025")
	require.NoError(t, err)
	assert.Equal(t, 47, id.Sequence)
	assert.Equal(t, 13, id.Day)
	assert.Equal(t, 1, id.Month)
	assert.Equal(t, 2025, id.Year)
	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), id.Date())
}

func TestDecodeLadleIDRoundTrip(t *testing.T) {
	dates := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 27, 0, 0, 0, 0, time.UTC),
		time.Date(2100, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	sequences := []int{1, 9, 10, 47, 999, 12345}

	for _, date := range dates {
		for _, seq := range sequences {
			encoded, err := EncodeLadleID(seq, date)
			require.NoError(t, err)

			decoded, err := DecodeLadleID(encoded)
			require.NoError(t, err, "identifier %s", encoded)
			assert.Equal(t, seq, decoded.Sequence)
			assert.Equal(t, date, decoded.Date())
			assert.Equal(t, encoded, decoded.String())
		}
	}
}

func TestDecodeLadleIDInvalid(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
	}{
		{"empty", ""},
		{"too short", "13012025"},
		{"non numeric sequence", "x13012025"},
		{"non numeric date", "47130120ab"},
		{"zero sequence", "013012025"},
		{"day out of range", "4732012025"},
		{"zero day", "4700012025"},
		{"month out of range", "4713132025"},
		{"year below window", "4713012019"},
		{"year above window", "4713012101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLadleID(tt.identifier)
			assert.ErrorIs(t, err, ErrInvalidFormat)
			assert.False(t, ValidLadleID(tt.identifier))
		})
	}
}

func TestNextLadleSequence(t *testing.T) {
	assert.Equal(t, 1, NextLadleSequence(nil))

	max := 4
	assert.Equal(t, 5, NextLadleSequence(&max))

	max = 47
	assert.Equal(t, 48, NextLadleSequence(&max))
}
