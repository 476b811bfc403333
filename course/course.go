// Package course loads course manifests: the ordered lessons of a course and
// where each one is played from.
package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lessontrack/lessontrack/duration"
	"github.com/lessontrack/lessontrack/filesystem"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Lesson is one manifest entry.
type Lesson struct {
	ID    string `json:"id" jsonschema:"required,description=Lesson identifier used by the backend"`
	Title string `json:"title,omitempty"`
	// Duration is written by course authors in free form: "12:30", "45min", "90s".
	Duration string `json:"duration,omitempty" jsonschema:"description=Nominal duration in any human form such as 12:30 or 45min"`
	Source   string `json:"source" jsonschema:"required,enum=embedded-widget,enum=widget,enum=direct-media,enum=media"`
	// URL is the widget embed URL or the primary media stream.
	URL string `json:"url" jsonschema:"required,format=uri"`
	// Fallback is tried once when the primary media stream fails.
	Fallback string `json:"fallback,omitempty" jsonschema:"format=uri"`
}

// Kind parses the lesson source kind.
func (l Lesson) Kind() (player.SourceKind, error) {
	return player.ParseSourceKind(l.Source)
}

// Seconds is the nominal duration, 0 when unknown.
func (l Lesson) Seconds() int {
	return duration.Parse(l.Duration)
}

// Name is the title, or the ID for untitled lessons.
func (l Lesson) Name() string {
	if l.Title != "" {
		return l.Title
	}
	return l.ID
}

// Course is a parsed manifest.
type Course struct {
	ID      string   `json:"id" jsonschema:"required"`
	Title   string   `json:"title,omitempty"`
	Lessons []Lesson `json:"lessons" jsonschema:"required,minItems=1"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Course, error) {
	data, err := filesystem.API().ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read course manifest: %w", err)
	}

	var c Course
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse course manifest %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("course manifest %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks the invariants Load relies on.
func (c *Course) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("course id is required")
	}
	if len(c.Lessons) == 0 {
		return errors.New("course has no lessons")
	}

	var errs []error
	seen := make(map[string]bool, len(c.Lessons))
	for i, l := range c.Lessons {
		switch {
		case strings.TrimSpace(l.ID) == "":
			errs = append(errs, fmt.Errorf("lesson #%d: id is required", i+1))
			continue
		case seen[l.ID]:
			errs = append(errs, fmt.Errorf("lesson %s: duplicate id", l.ID))
		}
		seen[l.ID] = true

		if _, err := l.Kind(); err != nil {
			errs = append(errs, fmt.Errorf("lesson %s: %w", l.ID, err))
		}
		if strings.TrimSpace(l.URL) == "" {
			errs = append(errs, fmt.Errorf("lesson %s: url is required", l.ID))
		}
	}
	return errors.Join(errs...)
}

// Name is the title, or the ID for untitled courses.
func (c *Course) Name() string {
	if c.Title != "" {
		return c.Title
	}
	return c.ID
}

// LessonIDs lists the lesson IDs in manifest order.
func (c *Course) LessonIDs() []string {
	return lo.Map(c.Lessons, func(l Lesson, _ int) string { return l.ID })
}

// Lesson finds a lesson by ID.
func (c *Course) Lesson(id string) (Lesson, bool) {
	return lo.Find(c.Lessons, func(l Lesson) bool {
		return l.ID == id
	})
}

// Find resolves a lesson by ID, falling back to the closest fuzzy title match.
func (c *Course) Find(query string) (Lesson, error) {
	if l, ok := c.Lesson(query); ok {
		return l, nil
	}

	names := lo.Map(c.Lessons, func(l Lesson, _ int) string { return l.Name() })
	ranks := fuzzy.RankFindNormalizedFold(query, names)
	if len(ranks) == 0 {
		return Lesson{}, fmt.Errorf("no lesson of %s matches %q", c.Name(), query)
	}
	sort.Sort(ranks)
	return c.Lessons[ranks[0].OriginalIndex], nil
}

// Next is the lesson that follows id, if any.
func (c *Course) Next(id string) mo.Option[Lesson] {
	_, i, ok := lo.FindIndexOf(c.Lessons, func(l Lesson) bool {
		return l.ID == id
	})
	if !ok || i+1 >= len(c.Lessons) {
		return mo.None[Lesson]()
	}
	return mo.Some(c.Lessons[i+1])
}

// Tracked converts a lesson into what the tracker engine needs.
func (c *Course) Tracked(l Lesson) tracker.Lesson {
	return tracker.Lesson{
		CourseID: c.ID,
		ID:       l.ID,
		Title:    l.Name(),
		Duration: l.Seconds(),
	}
}
