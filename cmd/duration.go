package cmd

import (
	"strconv"

	"github.com/lessontrack/lessontrack/duration"
	"github.com/lessontrack/lessontrack/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(durationCmd)
	durationCmd.Flags().BoolP("format", "f", false, "Format seconds as M:SS or H:MM:SS instead of parsing")
}

var durationCmd = &cobra.Command{
	Use:   "duration [value...]",
	Short: "Parse lesson duration strings into seconds",
	Long: `Parse lesson duration strings such as "10:30", "1:02:03", "5 min" or "90" into seconds.
Anything that cannot be read is reported as 0, meaning unknown.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format := lo.Must(cmd.Flags().GetBool("format"))

		for _, arg := range args {
			if format {
				seconds, err := strconv.Atoi(arg)
				handleErr(err)
				cmd.Printf("%s %s\n", style.Faint(arg), style.Bold(duration.Format(seconds)))
				continue
			}

			cmd.Printf("%s %s\n", style.Faint(strconv.Quote(arg)), style.Bold(strconv.Itoa(duration.Parse(arg))))
		}
	},
}
