package modules

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

// DefaultDateFormat is used when a tp.date call passes no format.
const DefaultDateFormat = "YYYY-MM-DD"

var (
	// ErrBadDuration is returned for an offset that is neither a number of
	// days nor an ISO 8601 duration.
	ErrBadDuration = errors.New("invalid duration")
	// ErrBadReference is returned when a reference date does not match its
	// format.
	ErrBadReference = errors.New("invalid reference date")
)

func (x *Executor) registerDate() {
	x.handlers["date.now"] = func(_ context.Context, args []value.Value) eval.ModuleResult {
		ref, err := x.reference(args, 2)
		if err != nil {
			return eval.Failed(err)
		}
		if off := arg(args, 1); !off.IsNull() {
			if ref, err = shift(ref, off); err != nil {
				return eval.Failed(err)
			}
		}
		return eval.OK(value.String(FormatDate(ref, stringArg(args, 0, DefaultDateFormat))))
	}
	x.handlers["date.tomorrow"] = func(_ context.Context, args []value.Value) eval.ModuleResult {
		return eval.OK(value.String(FormatDate(x.clock().AddDate(0, 0, 1), stringArg(args, 0, DefaultDateFormat))))
	}
	x.handlers["date.yesterday"] = func(_ context.Context, args []value.Value) eval.ModuleResult {
		return eval.OK(value.String(FormatDate(x.clock().AddDate(0, 0, -1), stringArg(args, 0, DefaultDateFormat))))
	}
	x.handlers["date.weekday"] = func(_ context.Context, args []value.Value) eval.ModuleResult {
		ref, err := x.reference(args, 2)
		if err != nil {
			return eval.Failed(err)
		}
		day := int(arg(args, 1).ToNumber())
		ref = ref.AddDate(0, 0, day-int(ref.Weekday()))
		return eval.OK(value.String(FormatDate(ref, stringArg(args, 0, DefaultDateFormat))))
	}
}

// reference parses args[i] with the format in args[i+1], or returns the
// current time when args[i] is missing.
func (x *Executor) reference(args []value.Value, i int) (time.Time, error) {
	ref := arg(args, i)
	if ref.IsNull() || ref.String() == "" {
		return x.clock(), nil
	}
	if ref.Kind() == value.KindObject && ref.Object().IsDate() {
		return ref.Object().Time(), nil
	}
	return ParseDate(ref.String(), stringArg(args, i+1, DefaultDateFormat))
}

// shift moves t by a number of days or an ISO 8601 duration such as "P1W"
// or "-P1M".
func shift(t time.Time, off value.Value) (time.Time, error) {
	if off.Kind() == value.KindNumber {
		return t.AddDate(0, 0, int(off.Num())), nil
	}
	s := strings.TrimSpace(off.String())
	if n, err := strconv.Atoi(s); err == nil {
		return t.AddDate(0, 0, n), nil
	}
	d, err := ParseDuration(s)
	if err != nil {
		return t, err
	}
	return d.Apply(t), nil
}

// Duration is a calendar duration.
type Duration struct {
	Years, Months, Days int
	Clock               time.Duration
}

// Apply adds d to t.
func (d Duration) Apply(t time.Time) time.Time {
	return t.AddDate(d.Years, d.Months, d.Days).Add(d.Clock)
}

// ParseDuration parses ISO 8601 durations (PnYnMnWnDTnHnMnS). A leading
// minus negates the whole duration; each component may carry its own sign.
func ParseDuration(s string) (Duration, error) {
	var d Duration
	sign := 1
	rest := s
	if strings.HasPrefix(rest, "-") {
		sign, rest = -1, rest[1:]
	} else if strings.HasPrefix(rest, "+") {
		rest = rest[1:]
	}
	if len(rest) < 2 || (rest[0] != 'P' && rest[0] != 'p') {
		return d, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	rest = strings.ToUpper(rest[1:])
	inTime := false
	for rest != "" {
		if rest[0] == 'T' {
			inTime, rest = true, rest[1:]
			continue
		}
		i := 0
		for i < len(rest) && (rest[i] == '-' || rest[i] == '+' || rest[i] == '.' || (rest[i] >= '0' && rest[i] <= '9')) {
			i++
		}
		if i == 0 || i == len(rest) {
			return d, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}
		n, err := strconv.ParseFloat(rest[:i], 64)
		if err != nil {
			return d, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}
		n *= float64(sign)
		switch unit := rest[i]; {
		case !inTime && unit == 'Y':
			d.Years += int(n)
		case !inTime && unit == 'M':
			d.Months += int(n)
		case !inTime && unit == 'W':
			d.Days += int(n * 7)
		case !inTime && unit == 'D':
			d.Days += int(n)
		case inTime && unit == 'H':
			d.Clock += time.Duration(n * float64(time.Hour))
		case inTime && unit == 'M':
			d.Clock += time.Duration(n * float64(time.Minute))
		case inTime && unit == 'S':
			d.Clock += time.Duration(n * float64(time.Second))
		default:
			return d, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}
		rest = rest[i+1:]
	}
	return d, nil
}

type dateToken struct {
	token  string
	layout string
	render func(time.Time) string
}

// Longest tokens first so "YYYY" wins over "YY".
var dateTokens = []dateToken{
	{token: "YYYY", layout: "2006"},
	{token: "MMMM", layout: "January"},
	{token: "dddd", layout: "Monday"},
	{token: "MMM", layout: "Jan"},
	{token: "ddd", layout: "Mon"},
	{token: "YY", layout: "06"},
	{token: "MM", layout: "01"},
	{token: "DD", layout: "02"},
	{token: "Do", render: func(t time.Time) string { return ordinal(t.Day()) }},
	{token: "HH", layout: "15"},
	{token: "hh", layout: "03"},
	{token: "mm", layout: "04"},
	{token: "ss", layout: "05"},
	{token: "ZZ", layout: "-0700"},
	{token: "M", layout: "1"},
	{token: "D", layout: "2"},
	{token: "H", render: func(t time.Time) string { return strconv.Itoa(t.Hour()) }},
	{token: "h", layout: "3"},
	{token: "m", layout: "4"},
	{token: "s", layout: "5"},
	{token: "A", layout: "PM"},
	{token: "a", layout: "pm"},
	{token: "Z", layout: "-07:00"},
	{token: "X", render: func(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }},
}

func ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// scanDate walks a moment-style format, calling tok for each token and lit
// for literal text. Text inside square brackets is literal.
func scanDate(format string, tok func(dateToken), lit func(string)) {
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				lit(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		matched := false
		for _, dt := range dateTokens {
			if strings.HasPrefix(format[i:], dt.token) {
				tok(dt)
				i += len(dt.token)
				matched = true
				break
			}
		}
		if !matched {
			lit(format[i : i+1])
			i++
		}
	}
}

// FormatDate formats t with a moment-style format such as "YYYY-MM-DD".
func FormatDate(t time.Time, format string) string {
	var sb strings.Builder
	scanDate(format, func(dt dateToken) {
		if dt.render != nil {
			sb.WriteString(dt.render(t))
			return
		}
		sb.WriteString(t.Format(dt.layout))
	}, func(s string) { sb.WriteString(s) })
	return sb.String()
}

// ParseDate parses s with a moment-style format in local time.
func ParseDate(s, format string) (time.Time, error) {
	var layout strings.Builder
	var unsupported string
	scanDate(format, func(dt dateToken) {
		if dt.render != nil {
			unsupported = dt.token
			return
		}
		layout.WriteString(dt.layout)
	}, func(lit string) { layout.WriteString(lit) })
	if unsupported != "" {
		return time.Time{}, fmt.Errorf("%w: token %s cannot be parsed", ErrBadReference, unsupported)
	}
	t, err := time.ParseInLocation(layout.String(), s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadReference, err)
	}
	return t, nil
}
