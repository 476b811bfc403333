// Package cmd implements the command-line interface for lessontrack.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/constant"
	"github.com/lessontrack/lessontrack/history"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/style"
	"github.com/lessontrack/lessontrack/util"
	"github.com/lessontrack/lessontrack/where"
	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().StringP("icons", "I", "", "Set the visual icon variant (e.g., nerd, emoji, squares)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("icons", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return icon.AvailableVariants(), cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.IconsVariant, rootCmd.PersistentFlags().Lookup("icons")))

	rootCmd.Flags().BoolP("continue", "c", false, "Resume the most recently watched lesson")
	rootCmd.Flags().BoolP("mini", "m", false, "Use plain prompts instead of the full screen interface")

	// leftover mpv sockets of crashed sessions
	go func() {
		_ = util.Delete(where.Temp())
	}()
}

// rootCmd defines the entry point for the lessontrack application.
var rootCmd = &cobra.Command{
	Use:   constant.App,
	Short: "Lesson watch-time tracking and auto-completion for online courses",
	Long: constant.AsciiArtLogo + "\n" +
		style.New().Italic(true).Foreground(color.HiPurple).Render("    - Watch course lessons and keep your progress in sync"),
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		if !lo.Must(cmd.Flags().GetBool("continue")) {
			handleErr(cmd.Help())
			return
		}

		last, err := history.Last()
		handleErr(err)

		entry, ok := last.Get()
		if !ok {
			handleErr(errors.New("nothing to continue, watch a course first"))
		}

		handleErr(runWatch(entry.Manifest, mo.Some(entry.LessonID), lo.Must(cmd.Flags().GetBool("mini"))))
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s %s\n", icon.Get(icon.Fail), strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
