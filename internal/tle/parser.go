// Package tle reads NORAD two-line element sets and turns them into
// classical orbital elements.
package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Entry is a single satellite's two-line element set.
type Entry struct {
	NORADID        int
	Name           string // empty for bare 2-line sets
	IntlDesignator string // e.g. "98067A"
	Epoch          time.Time
	Line1          string
	Line2          string
}

// Parse reads TLE text in 2-line or 3-line form. A name line may carry the
// "0 " prefix used by 3LE files. Element sets that cannot be read are
// skipped with a warning; checksum mismatches are logged but kept.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	var (
		entries []Entry
		name    string
		line1   string
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "1 ") && line1 == "":
			line1 = line
		case strings.HasPrefix(line, "2 ") && line1 != "":
			e, err := newEntry(name, line1, line)
			if err != nil {
				logger.Warn("skipping TLE entry", "line", lineNo, "name", name, "error", err)
			} else {
				for i, l := range []string{line1, line} {
					if !checksumOK(l) {
						logger.Warn("TLE checksum mismatch", "norad_id", e.NORADID, "line", i+1)
					}
				}
				entries = append(entries, e)
			}
			name, line1 = "", ""
		default:
			// A stray line 1 without its line 2 is dropped; any other line
			// names the next element set.
			if line1 != "" {
				logger.Warn("skipping TLE line 1 without line 2", "line", lineNo-1, "name", name)
				line1 = ""
			}
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}
	return entries, nil
}

func newEntry(name, line1, line2 string) (Entry, error) {
	if len(line1) < 32 {
		return Entry{}, fmt.Errorf("line 1 has %d columns, need 32", len(line1))
	}
	if len(line2) < line2MinLen {
		return Entry{}, fmt.Errorf("line 2 has %d columns, need %d", len(line2), line2MinLen)
	}

	// NORAD catalog number, columns 3-7, repeated on line 2.
	id, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return Entry{}, fmt.Errorf("invalid NORAD ID %q", line1[2:7])
	}
	if id2, err := strconv.Atoi(strings.TrimSpace(line2[2:7])); err != nil || id2 != id {
		return Entry{}, fmt.Errorf("line 2 catalog number %q does not match %d", line2[2:7], id)
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		NORADID:        id,
		Name:           name,
		IntlDesignator: strings.TrimSpace(line1[9:17]),
		Epoch:          epoch,
		Line1:          line1,
		Line2:          line2,
	}, nil
}

// checksumOK verifies the modulo-10 checksum in column 69: digits count
// their value, minus signs count one.
func checksumOK(line string) bool {
	if len(line) < 69 {
		return false
	}
	sum := 0
	for _, c := range line[:68] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return int(line[68]-'0') == sum%10
}

// parseEpoch converts YYDDD.DDDDDDDD to a UTC time. Two-digit years 57-99
// are 1900s, 00-56 are 2000s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yy, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}

	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	// Day 1.0 is Jan 1 00:00 UTC.
	jan1 := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return jan1.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}
