package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/style"
	"github.com/lessontrack/lessontrack/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolP("list", "l", false, "List queued completions without sending them")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver lesson completions the backend has not acknowledged yet",
	Run: func(cmd *cobra.Command, args []string) {
		rec := reconcile.FromConfig()

		pending, err := rec.Pending()
		handleErr(err)

		if len(pending) == 0 {
			cmd.Printf("%s nothing to sync\n", style.Fg(color.Green)(icon.Get(icon.Success)))
			return
		}

		if lo.Must(cmd.Flags().GetBool("list")) {
			for _, p := range pending {
				cmd.Printf("%s %s %s\n",
					style.Fg(color.Purple)(p.LessonID),
					style.Faint(fmt.Sprintf("%.0fs watched", p.WatchedDuration)),
					style.Faint(time.Unix(p.Timestamp, 0).Format(time.DateTime)),
				)
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		erase := util.PrintErasable(fmt.Sprintf("%s Sending %s...", icon.Get(icon.Sync), util.Quantify(len(pending), "completion", "completions")))
		delivered, err := rec.Flush(ctx)
		erase()

		if delivered > 0 {
			cmd.Printf("%s delivered %s\n", style.Fg(color.Green)(icon.Get(icon.Success)), util.Quantify(delivered, "completion", "completions"))
		}
		handleErr(err)
	},
}
