package review

import (
	"regexp"
	"strings"
	"time"
)

// monthDay finds "March 22, 2024" inside strings such as
// "Friday, March 22, 2024 at 10:15:32 AM" or
// "Reviewed in the United States on March 5, 2024".
var monthDay = regexp.MustCompile(`([A-Z][a-z]+)\.? (\d{1,2}), (\d{4})`)

// dayMonth finds "5 March 2024" as in
// "Reviewed in the United Kingdom on 5 March 2024".
var dayMonth = regexp.MustCompile(`(\d{1,2}) ([A-Z][a-z]+)\.? (\d{4})`)

var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
	"01/02/2006",
}

// ParseDate extracts a calendar date from a source-specific string. It
// returns nil rather than an error when nothing usable is found.
func ParseDate(source Source, s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	switch source {
	case SourceTrustpilot, SourceAmazon:
		if t := parseProse(s); t != nil {
			return t
		}
	}
	return parseGeneric(s)
}

func parseProse(s string) *time.Time {
	if m := monthDay.FindStringSubmatch(s); m != nil {
		if t := parseAny(m[1]+" "+m[2]+", "+m[3], "January 2, 2006", "Jan 2, 2006"); t != nil {
			return t
		}
	}
	if m := dayMonth.FindStringSubmatch(s); m != nil {
		return parseAny(m[1]+" "+m[2]+" "+m[3], "2 January 2006", "2 Jan 2006")
	}
	return nil
}

func parseAny(s string, layouts ...string) *time.Time {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// parseGeneric keeps the calendar day as written; an offset does not move it.
func parseGeneric(s string) *time.Time {
	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}
