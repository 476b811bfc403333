package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lessontrack/lessontrack/bridge"
	"github.com/lessontrack/lessontrack/certificate"
	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/config"
	"github.com/lessontrack/lessontrack/constant"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/history"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/mini"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/style"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/lessontrack/lessontrack/tui"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("lesson", "l", "", "Open this lesson right away, by ID or by title")
	watchCmd.Flags().BoolP("continue", "c", false, "Open the lesson last watched in this course")
	watchCmd.MarkFlagsMutuallyExclusive("lesson", "continue")
	watchCmd.Flags().BoolP("mini", "m", false, "Use plain prompts instead of the full screen interface")
}

var watchCmd = &cobra.Command{
	Use:   "watch [manifest]",
	Short: "Watch the lessons of a course and track your progress",
	Long: `Watch the lessons of a course and track your progress.

The manifest is a JSON file describing the course and its lessons.
Run "` + constant.App + ` schema" to see its format.`,
	Args:    cobra.ExactArgs(1),
	Example: "  " + constant.App + " watch ./go-101.json --lesson intro",
	Run: func(cmd *cobra.Command, args []string) {
		start := mo.None[string]()
		if lesson := lo.Must(cmd.Flags().GetString("lesson")); lesson != "" {
			start = mo.Some(lesson)
		}

		if lo.Must(cmd.Flags().GetBool("continue")) {
			id, err := lastLessonOf(args[0])
			handleErr(err)
			start = id
		}

		handleErr(runWatch(args[0], start, lo.Must(cmd.Flags().GetBool("mini"))))
	},
}

// lastLessonOf finds the lesson last watched from the manifest at path.
func lastLessonOf(path string) (mo.Option[string], error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return mo.None[string](), err
	}

	recent, err := history.Recent()
	if err != nil {
		return mo.None[string](), err
	}

	entry, ok := lo.Find(recent, func(e *history.Entry) bool {
		return e.Manifest == abs
	})
	if !ok {
		log.Infof("no history for %s, starting from the lesson list", abs)
		return mo.None[string](), nil
	}
	return mo.Some(entry.LessonID), nil
}

// runWatch loads the manifest, runs the watch view and records where the learner stopped.
func runWatch(path string, start mo.Option[string], plain bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	c, err := course.Load(abs)
	if err != nil {
		return err
	}

	if query, ok := start.Get(); ok {
		lesson, err := c.Find(query)
		if err != nil {
			return err
		}
		start = mo.Some(lesson.ID)
	}

	CheckDependencies(c)

	rec := reconcile.FromConfig()

	// completions queued by earlier runs go out while the learner picks a lesson
	flushCtx, stopFlush := context.WithCancel(context.Background())
	defer stopFlush()
	go func() {
		delivered, err := rec.Flush(flushCtx)
		if err != nil {
			log.Warnf("replaying queued completions: %v", err)
		}
		if delivered > 0 {
			log.Infof("delivered %d queued completion(s)", delivered)
		}
	}()

	options := &tui.Options{
		Course:     c,
		Reconciler: rec,
		Engine:     tracker.OptionsFromConfig(),
		Start:      start,
	}

	var server *bridge.Server
	if needsBridge(c) {
		server = bridge.New("", viper.GetString(key.WidgetOrigin))
		if err := server.Start(viper.GetString(key.BridgeAddress)); err != nil {
			return fmt.Errorf("starting widget bridge: %w", err)
		}
		defer func() {
			if err := server.Close(); err != nil {
				log.Warnf("closing widget bridge: %v", err)
			}
		}()
		options.WidgetURL = server.URL()
	}

	options.Adapter = func(lesson course.Lesson) (player.Adapter, error) {
		return newAdapter(server, lesson)
	}

	var last mo.Option[tracker.Session]
	if plain {
		last, err = mini.Run(&mini.Options{
			Course:     options.Course,
			Reconciler: options.Reconciler,
			Adapter:    options.Adapter,
			Engine:     options.Engine,
			Start:      options.Start,
			WidgetURL:  options.WidgetURL,
		})
	} else {
		last, err = tui.Run(options)
	}
	if err != nil {
		return err
	}

	if session, ok := last.Get(); ok {
		if err := history.Save(history.Entry{
			CourseID:    c.ID,
			CourseTitle: c.Name(),
			Manifest:    abs,
			LessonID:    session.LessonID,
			LessonTitle: session.Title,
			WatchTime:   session.WatchTime,
			Fraction:    session.Fraction(),
			Completed:   session.Completed,
		}); err != nil {
			log.Warnf("saving history: %v", err)
		}
	}

	if viper.GetBool(key.CertificateOffer) {
		offerCertificate(rec, c)
	}

	return nil
}

// newAdapter builds the video source of lesson. Widget lessons need server.
func newAdapter(server *bridge.Server, lesson course.Lesson) (player.Adapter, error) {
	kind, err := lesson.Kind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case player.EmbeddedWidget:
		if server == nil {
			return nil, fmt.Errorf("widget bridge is not running")
		}
		server.SetEmbed(lesson.URL)
		return player.NewWidgetAdapter(server, player.WidgetOptions{
			Origin:       viper.GetString(key.WidgetOrigin),
			PollInterval: config.Duration(key.TrackingPollInterval, time.Second),
			ID:           lesson.ID,
		}), nil
	default:
		mpv := player.NewMPV(viper.GetString(key.PlayerMPVPath), lesson.Name())
		return player.NewMediaAdapter(mpv, player.MediaOptions{
			PrimaryURL:        lesson.URL,
			FallbackURL:       lesson.Fallback,
			ProgressEvery:     config.Duration(key.TrackingProgressThrottle, time.Millisecond),
			SyntheticEndRatio: float64(viper.GetInt(key.MediaSyntheticEndPercent)) / 100,
		}), nil
	}
}

// offerCertificate asks for the certificate when the course is done.
func offerCertificate(rec *reconcile.Reconciler, c *course.Course) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	records, err := rec.Pull(ctx, c.ID)
	if err != nil {
		log.Warnf("pulling progress of %s for certificate: %v", c.ID, err)
		return
	}

	url, err := certificate.New(rec.Client(), certificate.Options{}).Evaluate(ctx, c.ID, c.LessonIDs(), records)
	if err != nil {
		_, _ = fmt.Printf("%s %v\n", icon.Get(icon.Warn), err)
		return
	}

	if url != "" {
		fmt.Printf("%s certificate ready: %s\n", style.Fg(color.Green)(icon.Get(icon.Certificate)), url)
	}
}
