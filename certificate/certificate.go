// Package certificate offers a course certificate once every lesson is complete.
package certificate

import (
	"context"
	"fmt"
	"sync"

	"github.com/AlecAivazis/survey/v2"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/open"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/samber/lo"
)

// Issuer creates certificates on the backend.
type Issuer interface {
	IssueCertificate(ctx context.Context, courseID string) (string, error)
}

// Options customizes how the learner is asked and how the certificate is shown.
type Options struct {
	// Confirm asks whether to generate the certificate. Defaults to a survey prompt.
	Confirm func(courseID string) (bool, error)
	// Open shows the certificate. Defaults to the system browser.
	Open func(url string) error
}

// Trigger offers certificate generation at most once per course per process.
type Trigger struct {
	issuer Issuer
	opts   Options

	mu      sync.Mutex
	offered map[string]bool
}

// New creates a trigger. Unset options default to a survey prompt and the system browser.
func New(issuer Issuer, opts Options) *Trigger {
	if opts.Confirm == nil {
		opts.Confirm = confirm
	}
	if opts.Open == nil {
		opts.Open = open.URL
	}
	return &Trigger{
		issuer:  issuer,
		opts:    opts,
		offered: make(map[string]bool),
	}
}

// AllCompleted reports whether every lesson in lessonIDs has a completed record.
// Lessons the backend never reported count as not completed.
func AllCompleted(lessonIDs []string, records []reconcile.Record) bool {
	completed := lo.SliceToMap(lo.Filter(records, func(r reconcile.Record, _ int) bool {
		return r.Completed
	}), func(r reconcile.Record) (string, bool) {
		return r.LessonID, true
	})

	return len(lessonIDs) > 0 && lo.EveryBy(lessonIDs, func(id string) bool {
		return completed[id]
	})
}

// Evaluate offers the certificate if every lesson of the course is complete and
// it was not offered before. It returns the certificate URL when one was issued.
func (t *Trigger) Evaluate(ctx context.Context, courseID string, lessonIDs []string, records []reconcile.Record) (string, error) {
	if !AllCompleted(lessonIDs, records) {
		return "", nil
	}

	t.mu.Lock()
	if t.offered[courseID] {
		t.mu.Unlock()
		return "", nil
	}
	t.offered[courseID] = true
	t.mu.Unlock()

	ok, err := t.opts.Confirm(courseID)
	if err != nil {
		return "", fmt.Errorf("certificate prompt: %w", err)
	}
	if !ok {
		log.Infof("certificate for course %s declined", courseID)
		return "", nil
	}

	url, err := t.issuer.IssueCertificate(ctx, courseID)
	if err != nil {
		return "", err
	}

	log.Infof("certificate for course %s issued: %s", courseID, url)
	if err := t.opts.Open(url); err != nil {
		log.Warnf("opening certificate: %v", err)
	}

	return url, nil
}

func confirm(courseID string) (bool, error) {
	prompt := survey.Confirm{
		Message: fmt.Sprintf("Every lesson of %s is complete. Generate your certificate?", courseID),
		Default: true,
	}

	var response bool
	err := survey.AskOne(&prompt, &response)
	return response, err
}
