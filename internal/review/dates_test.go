package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		source Source
		in     string
		want   string
	}{
		{"Trustpilot prose", SourceTrustpilot, "Friday, March 22, 2024 at 10:15:32 AM", "2024-03-22"},
		{"Trustpilot ISO fallback", SourceTrustpilot, "2024-03-22", "2024-03-22"},
		{"Trustpilot RFC3339 fallback", SourceTrustpilot, "2024-03-22T18:30:00Z", "2024-03-22"},
		{"Amazon plain", SourceAmazon, "March 5, 2024", "2024-03-05"},
		{"Amazon with locale prefix", SourceAmazon, "Reviewed in the United States on March 5, 2024", "2024-03-05"},
		{"Amazon abbreviated month", SourceAmazon, "Mar 5, 2024", "2024-03-05"},
		{"Amazon day before month", SourceAmazon, "Reviewed in the United Kingdom on 5 March 2024", "2024-03-05"},
		{"Amazon day before abbreviated month", SourceAmazon, "Reviewed in Germany on 12 Sep 2023", "2023-09-12"},
		{"Trustpilot day before month", SourceTrustpilot, "Updated 22 March 2024", "2024-03-22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDate(tt.source, tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format(DateLayout))
		})
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday-ish", "Someday 99, 20x4", "2024-13-45"} {
		assert.NotPanics(t, func() {
			assert.Nil(t, ParseDate(SourceTrustpilot, in), in)
			assert.Nil(t, ParseDate(SourceAmazon, in), in)
		})
	}
}

func TestParseDate_GenericIsMidnightUTC(t *testing.T) {
	got := ParseDate(SourceAmazon, "2024-03-22T23:59:00+02:00")
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, got.Hour())
	assert.Equal(t, "2024-03-22", got.Format(DateLayout))
}

func TestParseDate_OffsetKeepsCalendarDay(t *testing.T) {
	for in, want := range map[string]string{
		"2024-03-22T01:00:00+05:00": "2024-03-22",
		"2024-03-22T22:30:00-08:00": "2024-03-22",
	} {
		got := ParseDate(SourceTrustpilot, in)
		require.NotNil(t, got, in)
		assert.Equal(t, want, got.Format(DateLayout), in)
	}
}
