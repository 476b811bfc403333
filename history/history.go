// Package history remembers the last lesson watched in every course so a
// watch can be resumed without naming the manifest again.
package history

import (
	"fmt"
	"sort"
	"time"

	"github.com/lessontrack/lessontrack/filesystem"
	"github.com/lessontrack/lessontrack/where"
	"github.com/metafates/gache"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Entry is the last known position in one course.
type Entry struct {
	CourseID    string    `json:"course_id"`
	CourseTitle string    `json:"course_title"`
	Manifest    string    `json:"manifest"`
	LessonID    string    `json:"lesson_id"`
	LessonTitle string    `json:"lesson_title"`
	WatchTime   float64   `json:"watch_time"`
	Fraction    float64   `json:"fraction"`
	Completed   bool      `json:"completed"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s : %s (%.0f%%)", e.CourseTitle, e.LessonTitle, e.Fraction*100)
}

func cacher() *gache.Cache[map[string]*Entry] {
	return gache.New[map[string]*Entry](
		&gache.Options{
			Path:       where.History(),
			FileSystem: &filesystem.GacheFs{},
		},
	)
}

// Get returns every saved entry keyed by course ID.
func Get() (map[string]*Entry, error) {
	cached, expired, err := cacher().Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*Entry), nil
	}
	return cached, nil
}

// Save records entry as the latest position in its course. Progress of the same
// lesson never goes backwards.
func Save(entry Entry) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	if existing, ok := saved[entry.CourseID]; ok && existing.LessonID == entry.LessonID {
		entry.WatchTime = max(entry.WatchTime, existing.WatchTime)
		entry.Fraction = max(entry.Fraction, existing.Fraction)
		entry.Completed = entry.Completed || existing.Completed
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}

	saved[entry.CourseID] = &entry
	return cacher().Set(saved)
}

// Remove forgets a course.
func Remove(courseID string) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	delete(saved, courseID)
	return cacher().Set(saved)
}

// Recent lists entries, most recently updated first.
func Recent() ([]*Entry, error) {
	saved, err := Get()
	if err != nil {
		return nil, err
	}

	entries := lo.Values(saved)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	return entries, nil
}

// Last is the most recently updated entry.
func Last() (mo.Option[*Entry], error) {
	entries, err := Recent()
	if err != nil {
		return mo.None[*Entry](), err
	}
	if len(entries) == 0 {
		return mo.None[*Entry](), nil
	}
	return mo.Some(entries[0]), nil
}
