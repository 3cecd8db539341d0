// Package period computes business-day report windows and renders the
// upstream API's textual date format.
//
// All calendar-day boundaries use a fixed UTC-3 offset (Brasília time),
// independent of the host timezone.
package period

import (
	"strings"
	"time"
)

// Business is the fixed UTC-3 business timezone.
var Business = time.FixedZone("-03", -3*60*60)

// Window is one full business calendar day: Start is 00:00:00.000 and End is
// 23:59:59.999 of the same UTC-3 day. Immutable, constructed per execution.
type Window struct {
	Start time.Time
	End   time.Time
}

// Yesterday returns the window covering the UTC-3 calendar day before now.
func Yesterday(now time.Time) Window {
	local := now.In(Business)
	y := local.AddDate(0, 0, -1)
	return Day(y.Year(), y.Month(), y.Day())
}

// Day returns the full-day window for an explicit UTC-3 calendar date.
func Day(year int, month time.Month, day int) Window {
	start := time.Date(year, month, day, 0, 0, 0, 0, Business)
	end := time.Date(year, month, day, 23, 59, 59, 999_000_000, Business)
	return Window{Start: start, End: end}
}

// Label returns the window's calendar date as YYYY-MM-DD, used in outcomes
// and notifications.
func (w Window) Label() string {
	return w.Start.In(Business).Format("2006-01-02")
}

// upstreamLayout renders "Mon Oct 5 2020 00:00:00" with an unpadded day of
// month; the " GMT -0300" suffix (literal space before the offset) is fixed.
const upstreamLayout = "Mon Jan 2 2006 15:04:05"

// FormatUpstream renders t's UTC-3 wall-clock fields in the exact shape the
// report API expects and percent-encodes the result for use as a URL path
// segment. The textual shape is a hard upstream contract; do not "fix" it.
func FormatUpstream(t time.Time) string {
	formatted := t.In(Business).Format(upstreamLayout) + " GMT -0300"
	return encodeComponent(formatted)
}

// encodeComponent mirrors JavaScript's encodeURIComponent: everything except
// alphanumerics and -_.!~*'() is percent-encoded. url.PathEscape leaves ':'
// bare, which the upstream rejects, so the encoding is done by hand.
func encodeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '!' || c == '~' ||
			c == '*' || c == '\'' || c == '(' || c == ')':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexUpper[c>>4])
			b.WriteByte(hexUpper[c&0x0f])
		}
	}
	return b.String()
}

const hexUpper = "0123456789ABCDEF"
