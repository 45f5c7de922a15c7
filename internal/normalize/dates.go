package normalize

import (
	"strings"
	"time"
)

// MinYear is the earliest year accepted for any date in the store
const MinYear = 1900

const dateLayout = "2006-01-02"

// SanitizeDate returns raw as YYYY-MM-DD when it is a valid calendar
// date between 1900-01-01 and December 31 of the year after now.
// RFC 3339 timestamps are truncated to their date. Anything else,
// including sentinel dates far in the future, yields "".
func SanitizeDate(raw string, now time.Time) string {
	s := strings.TrimSpace(raw)
	if len(s) > len(dateLayout) {
		switch s[len(dateLayout)] {
		case 'T', ' ', 't':
			s = s[:len(dateLayout)]
		default:
			return ""
		}
	}

	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return ""
	}
	if !yearInRange(d.Year(), now) {
		return ""
	}
	return d.Format(dateLayout)
}

// SanitizeYear applies the same window to a bare year.
func SanitizeYear(year int64, now time.Time) (int64, bool) {
	if !yearInRange(int(year), now) {
		return 0, false
	}
	return year, true
}

func yearInRange(year int, now time.Time) bool {
	return year >= MinYear && year <= now.Year()+1
}
