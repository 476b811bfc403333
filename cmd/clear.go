package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/util"
	"github.com/lessontrack/lessontrack/where"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
)

type clearTarget struct {
	name     string
	argLong  string
	argShort mo.Option[string]
	location func() string
}

var clearTargets = []clearTarget{
	{"cache directory", "cache", mo.Some("c"), where.Cache},
	{"watch history", "history", mo.Some("s"), where.History},
	{"completion outbox", "outbox", mo.None[string](), where.Outbox},
}

func init() {
	rootCmd.AddCommand(clearCmd)

	for _, target := range clearTargets {
		help := fmt.Sprintf("clear %s", target.name)
		if short, ok := target.argShort.Get(); ok {
			clearCmd.Flags().BoolP(target.argLong, short, false, help)
		} else {
			clearCmd.Flags().Bool(target.argLong, false, help)
		}
	}

	clearCmd.Flags().BoolP("force", "f", false, "clear the outbox even if completions are still queued")
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached progress, watch history or queued completions",
	Run: func(cmd *cobra.Command, args []string) {
		var anyCleared bool

		for _, target := range clearTargets {
			if !lo.Must(cmd.Flags().GetBool(target.argLong)) {
				continue
			}

			if target.argLong == "outbox" && !lo.Must(cmd.Flags().GetBool("force")) {
				pending, err := reconcile.FromConfig().Pending()
				handleErr(err)
				if len(pending) > 0 {
					handleErr(fmt.Errorf(
						"%s still queued, run sync first or pass --force",
						util.Quantify(len(pending), "completion is", "completions are"),
					))
				}
			}

			anyCleared = true
			erase := util.PrintErasable(fmt.Sprintf("%s Clearing %s...", icon.Get(icon.Pending), target.name))
			err := util.Delete(target.location())
			erase()
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				handleErr(err)
			}
			fmt.Printf("%s %s cleared\n", icon.Get(icon.Success), util.Capitalize(target.name))
		}

		if !anyCleared {
			handleErr(cmd.Help())
		}
	},
}
