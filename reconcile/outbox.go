package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/lessontrack/lessontrack/filesystem"
)

// Pending is a completion the backend has not acknowledged yet.
type Pending struct {
	Timestamp       int64   `json:"timestamp"`
	LessonID        string  `json:"lessonId"`
	WatchedDuration float64 `json:"watchedDuration"`
}

// outbox is an append-only JSON-lines log of undelivered completions.
type outbox struct {
	path string
}

func (o outbox) append(lessonID string, watched float64) error {
	if err := filesystem.API().MkdirAll(filepath.Dir(o.path), os.ModePerm); err != nil {
		return err
	}

	f, err := filesystem.API().OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(Pending{
		Timestamp:       time.Now().Unix(),
		LessonID:        lessonID,
		WatchedDuration: watched,
	})
}

// load returns every entry in order. Corrupt lines are skipped.
func (o outbox) load() ([]Pending, error) {
	content, err := filesystem.API().ReadFile(o.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Pending
	for _, line := range bytes.Split(content, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var p Pending
		if err := json.Unmarshal(line, &p); err == nil && p.LessonID != "" {
			entries = append(entries, p)
		}
	}
	return entries, nil
}

// replace rewrites the log with entries, truncating it when there are none.
func (o outbox) replace(entries []Pending) error {
	if len(entries) == 0 {
		if exists, err := filesystem.API().Exists(o.path); err != nil || !exists {
			return err
		}
		return filesystem.API().WriteFile(o.path, nil, 0644)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range entries {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}

	tmp := o.path + ".tmp"
	if err := filesystem.API().WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return filesystem.API().Rename(tmp, o.path)
}
