package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var (
	ErrInvalidRRule    = errors.New("invalid rrule")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// The practical RFC 5545 subset. Anything else in the rule body is
// rejected rather than silently dropped.
var allowedParts = map[string]bool{
	"FREQ":       true,
	"INTERVAL":   true,
	"BYDAY":      true,
	"BYMONTHDAY": true,
	"BYMONTH":    true,
	"COUNT":      true,
	"UNTIL":      true,
}

var allowedFreqs = map[string]bool{
	"DAILY":   true,
	"WEEKLY":  true,
	"MONTHLY": true,
	"YEARLY":  true,
}

// LoadZone resolves an IANA timezone name.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// Normalize validates raw rule text against a dtstart and timezone and
// returns the canonical serialized form: a DTSTART line pinned to the
// zone followed by the RRULE line. Only the canonical form is ever
// persisted on a series. A DTSTART inside the raw text is ignored; the
// dtstart argument wins.
func Normalize(raw string, dtstart time.Time, tzName string) (string, error) {
	loc, err := LoadZone(tzName)
	if err != nil {
		return "", err
	}

	body, err := extractRuleBody(raw)
	if err != nil {
		return "", err
	}
	if err := validateParts(body); err != nil {
		return "", err
	}

	opt, err := rrule.StrToROptionInLocation(body, loc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRRule, err)
	}

	start := resolveLocal(dtstart.In(loc), loc)
	if start.Year() < 1 || start.Year() > 9999 {
		return "", fmt.Errorf("%w: dtstart year %d out of range", ErrInvalidRRule, start.Year())
	}
	if !opt.Until.IsZero() && (opt.Until.Year() < 1 || opt.Until.Year() > 9999) {
		return "", fmt.Errorf("%w: UNTIL out of range", ErrInvalidRRule)
	}
	opt.Dtstart = start

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRRule, err)
	}

	set := rrule.Set{}
	set.DTStart(start)
	set.RRule(rule)
	return set.String(), nil
}

// extractRuleBody accepts "FREQ=...", "RRULE:FREQ=..." or a full
// multi-line rendering and returns the bare rule body.
func extractRuleBody(raw string) (string, error) {
	body := ""
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "DTSTART"):
			// superseded by the series dtstart
		case strings.HasPrefix(line, "RRULE:"):
			if body != "" {
				return "", fmt.Errorf("%w: multiple RRULE lines", ErrInvalidRRule)
			}
			body = strings.TrimPrefix(line, "RRULE:")
		case strings.Contains(line, "="):
			if body != "" {
				return "", fmt.Errorf("%w: multiple RRULE lines", ErrInvalidRRule)
			}
			body = line
		default:
			return "", fmt.Errorf("%w: unrecognized line %q", ErrInvalidRRule, line)
		}
	}
	if body == "" {
		return "", fmt.Errorf("%w: empty rule", ErrInvalidRRule)
	}
	return body, nil
}

func validateParts(body string) error {
	seenFreq := false
	for _, part := range strings.Split(body, ";") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return fmt.Errorf("%w: malformed part %q", ErrInvalidRRule, part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if !allowedParts[key] {
			return fmt.Errorf("%w: unsupported part %s", ErrInvalidRRule, key)
		}
		if key == "FREQ" {
			seenFreq = true
			if !allowedFreqs[strings.ToUpper(strings.TrimSpace(value))] {
				return fmt.Errorf("%w: unsupported frequency %s", ErrInvalidRRule, value)
			}
		}
	}
	if !seenFreq {
		return fmt.Errorf("%w: missing FREQ", ErrInvalidRRule)
	}
	return nil
}

// resolveLocal pins wall-clock components to a zone deterministically:
// a nonexistent time (spring-forward gap) rolls forward by the gap, an
// ambiguous time (fall-back) resolves to the earlier UTC instant.
func resolveLocal(t time.Time, loc *time.Location) time.Time {
	c := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	if prev := c.Add(-time.Hour); sameWallClock(prev, c) {
		return prev
	}
	return c
}

func sameWallClock(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day() &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second()
}
