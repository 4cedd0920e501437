package changeset

import (
	"fmt"
	"regexp"
	"strings"
)

var isoDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// IsISODate reports whether s is exactly yyyy-mm-dd.
func IsISODate(s string) bool {
	return isoDate.MatchString(s)
}

// NormalizeForCompare turns an ISO date into dd/mm/yyyy and leaves anything
// else unchanged, so the two spellings of one date compare equal.
func NormalizeForCompare(s string) string {
	if m := isoDate.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s/%s/%s", m[3], m[2], m[1])
	}
	return s
}

// ToDisplayDate converts a yyyy-mm-dd value to dd/mm/yyyy. Values already
// containing a slash, empty values and anything it cannot split are
// returned unchanged.
func ToDisplayDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "/") {
		return s
	}
	// Timestamps from the store carry a time part.
	if i := strings.IndexAny(s, "T "); i > 0 {
		s = s[:i]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return s
	}
	return fmt.Sprintf("%s/%s/%s", parts[2], parts[1], parts[0])
}

// ToISODate converts d/m/yy or dd/mm/yyyy to yyyy-mm-dd, padding day and
// month and reading a two-digit year as 20yy. Values already containing a
// dash are returned unchanged; an empty value returns "".
func ToISODate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "-") {
		return s
	}
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return s
	}
	day, month, year := parts[0], parts[1], parts[2]
	if len(year) == 2 {
		year = "20" + year
	}
	return fmt.Sprintf("%s-%s-%s", year, pad2(month), pad2(day))
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// YearOf extracts the year of an ISO or dd/mm/yyyy date, or "" when neither
// form applies.
func YearOf(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.Contains(s, "-"):
		return strings.SplitN(s, "-", 2)[0]
	case strings.Contains(s, "/"):
		parts := strings.Split(s, "/")
		if len(parts) == 3 {
			if len(parts[2]) == 2 {
				return "20" + parts[2]
			}
			return parts[2]
		}
	}
	return ""
}
