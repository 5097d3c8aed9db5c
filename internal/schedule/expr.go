package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// exprPattern is the whole grammar. Anything that does not match it and is
// not a valid raw cron expression is rejected outright.
var exprPattern = regexp.MustCompile(`^every\((\d*)\)\.([A-Za-z]+)(?:\.at\('(\d{1,2}:\d{2})'\))?$`)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

var unitDurations = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

type hhmm struct {
	hour, minute int
}

// Expr is a parsed schedule expression. It is either an every(...) form or a
// raw five-field cron expression.
type Expr struct {
	Raw string

	n       int
	unit    string // normalized singular unit, "" for weekday or cron forms
	weekday *time.Weekday
	at      *hhmm
	cron    string
}

// ParseExpr parses a schedule expression. The every(...) grammar is matched
// against a fixed pattern and never evaluated; as a fallback a raw cron
// expression is accepted when gronx considers it valid.
func ParseExpr(raw string) (*Expr, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty schedule expression")
	}

	m := exprPattern.FindStringSubmatch(raw)
	if m == nil {
		if gronx.New().IsValid(raw) {
			return &Expr{Raw: raw, cron: raw}, nil
		}
		return nil, fmt.Errorf("invalid schedule expression %q", raw)
	}

	e := &Expr{Raw: raw, n: 1}
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid interval in %q", raw)
		}
		e.n = n
	}

	word := strings.ToLower(m[2])
	if wd, ok := weekdays[word]; ok {
		if e.n != 1 {
			return nil, fmt.Errorf("interval not supported with day names in %q", raw)
		}
		e.weekday = &wd
	} else if _, ok := unitDurations[strings.TrimSuffix(word, "s")]; ok {
		e.unit = strings.TrimSuffix(word, "s")
	} else {
		return nil, fmt.Errorf("unknown unit %q in %q", word, raw)
	}

	if m[3] != "" {
		at, err := parseAt(m[3])
		if err != nil {
			return nil, fmt.Errorf("%v in %q", err, raw)
		}
		if e.weekday == nil && e.unit != "day" {
			return nil, fmt.Errorf("at() only applies to days or day names in %q", raw)
		}
		e.at = at
	}
	return e, nil
}

func parseAt(s string) (*hhmm, error) {
	parts := strings.SplitN(s, ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	if h > 23 || m > 59 {
		return nil, fmt.Errorf("time %q out of range", s)
	}
	return &hhmm{hour: h, minute: m}, nil
}

// Next returns the first run time strictly after from.
func (e *Expr) Next(from time.Time) (time.Time, error) {
	switch {
	case e.cron != "":
		return gronx.NextTickAfter(e.cron, from, false)
	case e.weekday != nil:
		return e.nextWeekday(from), nil
	case e.at != nil:
		return e.nextDailyAt(from), nil
	default:
		return from.Add(time.Duration(e.n) * unitDurations[e.unit]), nil
	}
}

func (e *Expr) nextWeekday(from time.Time) time.Time {
	at := e.at
	if at == nil {
		at = &hhmm{}
	}
	c := time.Date(from.Year(), from.Month(), from.Day(), at.hour, at.minute, 0, 0, from.Location())
	for c.Weekday() != *e.weekday || !c.After(from) {
		c = c.AddDate(0, 0, 1)
	}
	return c
}

func (e *Expr) nextDailyAt(from time.Time) time.Time {
	c := time.Date(from.Year(), from.Month(), from.Day(), e.at.hour, e.at.minute, 0, 0, from.Location())
	for !c.After(from) {
		c = c.AddDate(0, 0, e.n)
	}
	return c
}
