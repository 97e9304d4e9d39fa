package filetail

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// DayLayout is the wire format for day selectors.
const DayLayout = "20060102"

// ParseDay parses a YYYYMMDD day in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(DayLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYYMMDD", s)
	}
	return day, nil
}

// ByDate returns the lines of the file at path whose leading token is the
// YYYY-MM-DD date of day. Lines without a parseable date are skipped.
func ByDate(path string, day time.Time) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	want := day.Format("2006-01-02")
	lines := []string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		token, _, _ := strings.Cut(strings.TrimSpace(text), " ")
		if _, err := time.Parse("2006-01-02", token); err != nil {
			continue
		}
		if token == want {
			lines = append(lines, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
