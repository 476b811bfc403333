package certificate

import (
	"context"
	"errors"
	"testing"

	"github.com/lessontrack/lessontrack/reconcile"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeIssuer struct {
	calls []string
	err   error
}

func (f *fakeIssuer) IssueCertificate(_ context.Context, courseID string) (string, error) {
	f.calls = append(f.calls, courseID)
	if f.err != nil {
		return "", f.err
	}
	return "https://certs.example/" + courseID, nil
}

func TestTrigger(t *testing.T) {
	Convey("Given a certificate trigger", t, func() {
		issuer := &fakeIssuer{}
		var asked, opened []string
		answer := true

		trigger := New(issuer, Options{
			Confirm: func(courseID string) (bool, error) {
				asked = append(asked, courseID)
				return answer, nil
			},
			Open: func(url string) error {
				opened = append(opened, url)
				return nil
			},
		})

		ctx := context.Background()
		lessons := []string{"l1", "l2"}
		done := []reconcile.Record{{LessonID: "l1", Completed: true}, {LessonID: "l2", Completed: true}}

		Convey("An incomplete course should not be offered", func() {
			url, err := trigger.Evaluate(ctx, "c1", lessons, []reconcile.Record{{LessonID: "l1", Completed: true}, {LessonID: "l2"}})
			So(err, ShouldBeNil)
			So(url, ShouldBeEmpty)
			So(asked, ShouldBeEmpty)
		})

		Convey("A course the backend only partly reports should not be offered", func() {
			url, err := trigger.Evaluate(ctx, "c1", []string{"l1", "l2", "l3"}, done)
			So(err, ShouldBeNil)
			So(url, ShouldBeEmpty)
			So(asked, ShouldBeEmpty)
			So(issuer.calls, ShouldBeEmpty)
		})

		Convey("An empty course should not be offered", func() {
			_, err := trigger.Evaluate(ctx, "c1", nil, nil)
			So(err, ShouldBeNil)
			So(asked, ShouldBeEmpty)
		})

		Convey("A complete course should be offered once", func() {
			url, err := trigger.Evaluate(ctx, "c1", lessons, done)
			So(err, ShouldBeNil)
			So(url, ShouldEqual, "https://certs.example/c1")
			So(opened, ShouldResemble, []string{"https://certs.example/c1"})

			url, err = trigger.Evaluate(ctx, "c1", lessons, done)
			So(err, ShouldBeNil)
			So(url, ShouldBeEmpty)
			So(asked, ShouldHaveLength, 1)
			So(issuer.calls, ShouldHaveLength, 1)
		})

		Convey("A declined offer should not call the backend nor be repeated", func() {
			answer = false
			url, err := trigger.Evaluate(ctx, "c1", lessons, done)
			So(err, ShouldBeNil)
			So(url, ShouldBeEmpty)
			So(issuer.calls, ShouldBeEmpty)

			_, _ = trigger.Evaluate(ctx, "c1", lessons, done)
			So(asked, ShouldHaveLength, 1)
		})

		Convey("Backend failures should be returned", func() {
			issuer.err = errors.New("boom")
			_, err := trigger.Evaluate(ctx, "c1", lessons, done)
			So(err, ShouldNotBeNil)
			So(opened, ShouldBeEmpty)
		})
	})
}

func TestAllCompleted(t *testing.T) {
	Convey("Given the lessons of a course", t, func() {
		lessons := []string{"intro", "types", "generics"}

		Convey("Only started lessons reported as completed are not enough", func() {
			So(AllCompleted(lessons, []reconcile.Record{{LessonID: "intro", WatchedDuration: 100, Completed: true}}), ShouldBeFalse)
		})

		Convey("A completed record for every lesson is enough", func() {
			So(AllCompleted(lessons, []reconcile.Record{
				{LessonID: "generics", Completed: true},
				{LessonID: "intro", Completed: true},
				{LessonID: "types", Completed: true},
				{LessonID: "retired", Completed: false},
			}), ShouldBeTrue)
		})

		Convey("An incomplete record blocks it", func() {
			So(AllCompleted(lessons, []reconcile.Record{
				{LessonID: "intro", Completed: true},
				{LessonID: "types", Completed: true},
				{LessonID: "generics"},
			}), ShouldBeFalse)
		})
	})
}
