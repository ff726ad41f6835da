package util

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{"2024-07-28T09:00:00.000-0400", time.Date(2024, 7, 28, 13, 0, 0, 0, time.UTC)},
		{"2024-07-28T13:00:00Z", time.Date(2024, 7, 28, 13, 0, 0, 0, time.UTC)},
		{"2024-07-28T13:00:00.123Z", time.Date(2024, 7, 28, 13, 0, 0, 123000000, time.UTC)},
		{"20230101T120000Z", time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-08-15", time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, c := range cases {
		got, err := ParseTimestamp(c.input)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", c.input, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("ParseTimestamp(%q): expected %v, got %v", c.input, c.want, got.UTC())
		}
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "yesterday", "2024/07/28"} {
		if _, err := ParseTimestamp(input); err == nil {
			t.Errorf("Expected error for %q", input)
		}
	}
	if ParseOptionalTimestamp("not a date") != nil {
		t.Error("Expected nil for unparseable optional timestamp")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "subject", "name"); got != "subject" {
		t.Errorf("Expected subject, got %q", got)
	}
	if got := FirstNonEmpty(); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
}
