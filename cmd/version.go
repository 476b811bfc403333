package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/constant"
	"github.com/lessontrack/lessontrack/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type buildInfo struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
	BuiltAt  string `json:"built_at"`
	BuiltBy  string `json:"built_by"`
	Platform string `json:"platform"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version:  constant.Version,
		Revision: constant.Revision,
		BuiltAt:  strings.TrimSpace(constant.BuiltAt),
		BuiltBy:  constant.BuiltBy,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, _ []string) {
		info := currentBuild()

		switch {
		case lo.Must(cmd.Flags().GetBool("short")):
			cmd.Println(info.Version)
		case lo.Must(cmd.Flags().GetBool("json")):
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(info))
		default:
			label := func(s string) string { return style.Faint(fmt.Sprintf("%-10s", s)) }
			cmd.Printf("%s %s\n\n", style.Fg(color.Purple)("▇▇▇"), style.Fg(color.Purple)(constant.App))
			cmd.Printf("  %s %s\n", label("Version"), style.Bold(info.Version))
			cmd.Printf("  %s %s\n", label("Revision"), style.Bold(info.Revision))
			cmd.Printf("  %s %s\n", label("Built at"), style.Bold(info.BuiltAt))
			cmd.Printf("  %s %s\n", label("Built by"), style.Bold(info.BuiltBy))
			cmd.Printf("  %s %s\n", label("Platform"), style.Bold(info.Platform))
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("short", "s", false, "print the version only")
	versionCmd.Flags().BoolP("json", "j", false, "output as json")
	versionCmd.MarkFlagsMutuallyExclusive("short", "json")
}
