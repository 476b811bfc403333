package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/duration"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/style"
	"github.com/lessontrack/lessontrack/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.Flags().BoolP("json", "j", false, "Print the backend records as JSON")
}

var progressCmd = &cobra.Command{
	Use:   "progress [manifest]",
	Short: "Show the saved progress of every lesson in a course",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := course.Load(args[0])
		handleErr(err)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		erase := util.PrintErasable(fmt.Sprintf("%s Pulling progress of %s...", icon.Get(icon.Sync), c.Name()))
		records, err := reconcile.FromConfig().Pull(ctx, c.ID)
		erase()
		handleErr(err)

		if lo.Must(cmd.Flags().GetBool("json")) {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			handleErr(encoder.Encode(records))
			return
		}

		cmd.Println(progressTable(c, records))

		done := lo.CountBy(c.Lessons, func(l course.Lesson) bool {
			return lo.ContainsBy(records, func(r reconcile.Record) bool {
				return r.LessonID == l.ID && r.Completed
			})
		})
		cmd.Printf("%s %d of %s completed\n", icon.Get(icon.Check), done, util.Quantify(len(c.Lessons), "lesson", "lessons"))
	},
}

func progressTable(c *course.Course, records []reconcile.Record) string {
	byLesson := lo.KeyBy(records, func(r reconcile.Record) string {
		return r.LessonID
	})

	header := style.New().Bold(true).Foreground(color.Purple).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(style.FaintColor)).
		Headers("#", "Lesson", "Length", "Watched", "Status").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for i, l := range c.Lessons {
		length := "?"
		if seconds := l.Seconds(); seconds > 0 {
			length = duration.Format(seconds)
		}

		watched, status := "0:00", style.Faint("not started")
		if rec, ok := byLesson[l.ID]; ok {
			watched = duration.Format(int(rec.WatchedDuration))
			switch {
			case rec.Completed:
				status = style.Fg(color.Green)(icon.Get(icon.Success) + " completed")
			case rec.WatchedDuration > 0:
				status = style.Fg(color.Yellow)(icon.Get(icon.Pending) + " in progress")
			}
		}

		t.Row(strconv.Itoa(i+1), l.Name(), length, watched, status)
	}

	return t.String()
}
