package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/lessontrack/lessontrack/auth"
	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringP("token", "t", "", "Backend token, prompted for when omitted")

	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the course backend token in the system keyring",
	Run: func(cmd *cobra.Command, args []string) {
		token := lo.Must(cmd.Flags().GetString("token"))

		if token == "" {
			handleErr(survey.AskOne(
				&survey.Password{Message: "Backend token"},
				&token,
				survey.WithValidator(survey.Required),
			))
		}

		token = strings.TrimSpace(token)
		if token == "" {
			handleErr(errors.New("token is empty"))
		}

		handleErr(auth.SetToken(token))
		cmd.Printf("%s token saved\n", style.Fg(color.Green)(icon.Get(icon.Success)))

		if os.Getenv(auth.EnvToken) != "" {
			cmd.Printf("%s %s is set and takes precedence\n", icon.Get(icon.Warn), auth.EnvToken)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the course backend token from the system keyring",
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(auth.DeleteToken())
		cmd.Printf("%s token removed\n", style.Fg(color.Green)(icon.Get(icon.Success)))
	},
}
