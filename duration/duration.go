// Package duration converts human-authored lesson durations into seconds.
//
// Course authors write durations in whatever form comes to mind: "45min",
// "12:30", "90s", "1 h", "Duração: 8 minutos". Parse accepts all of them and
// never fails; a result of 0 means the duration is unknown.
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	minuteSuffix = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*min(?:s|utes?|utos?)?\b`)
	clock        = regexp.MustCompile(`\b(\d{1,3}):([0-5]?\d)(?::([0-5]?\d))?\b`)
	shorthand    = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)\s*([smh])$`)
	digits       = regexp.MustCompile(`\d+`)
)

// Parse returns the number of seconds described by raw.
//
// Rules, in priority order: a minute suffix, a MM:SS or HH:MM:SS clock, a
// trailing s/m/h unit, and finally the first run of digits taken as seconds.
func Parse(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0
	}

	if m := minuteSuffix.FindStringSubmatch(s); m != nil {
		return round(number(m[1]) * 60)
	}

	if m := clock.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if m[3] == "" {
			return a*60 + b
		}
		c, _ := strconv.Atoi(m[3])
		return a*3600 + b*60 + c
	}

	if m := shorthand.FindStringSubmatch(s); m != nil {
		n := number(m[1])
		switch m[2] {
		case "h":
			return round(n * 3600)
		case "m":
			return round(n * 60)
		default:
			return round(n)
		}
	}

	if d := digits.FindString(s); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			return 0
		}
		return n
	}

	return 0
}

// Format renders seconds as M:SS, or H:MM:SS from one hour up.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// number parses a decimal that may use a comma separator.
func number(s string) float64 {
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func round(f float64) int {
	if math.IsInf(f, 0) || math.IsNaN(f) || f > math.MaxInt32 {
		return 0
	}
	return int(math.Round(f))
}
