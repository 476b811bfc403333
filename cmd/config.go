package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/config"
	"github.com/lessontrack/lessontrack/constant"
	"github.com/lessontrack/lessontrack/filesystem"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/style"
	"github.com/lessontrack/lessontrack/where"
	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
)

// lookupField resolves a setting, suggesting the closest known key on a typo.
func lookupField(key string) (config.Field, error) {
	if field, ok := config.Default[key]; ok {
		return field, nil
	}

	closest := lo.MinBy(lo.Keys(config.Default), func(a, b string) bool {
		return levenshtein.Distance(key, a) < levenshtein.Distance(key, b)
	})
	return config.Field{}, fmt.Errorf(
		"unknown key %s, did you mean %s?",
		style.Fg(color.Red)(key),
		style.Fg(color.Yellow)(closest),
	)
}

// parseValue converts raw command line values to the type of the field default.
func parseValue(field config.Field, raw []string) (any, error) {
	if len(raw) == 0 {
		return nil, errors.New("value is required")
	}

	switch field.Value.(type) {
	case string:
		return raw[0], nil
	case int:
		n, err := strconv.Atoi(raw[0])
		if err != nil {
			return nil, fmt.Errorf("%s expects an integer, got %q", field.Key, raw[0])
		}
		return n, nil
	case bool:
		b, err := strconv.ParseBool(raw[0])
		if err != nil {
			return nil, fmt.Errorf("%s expects true or false, got %q", field.Key, raw[0])
		}
		return b, nil
	case []string:
		return raw, nil
	default:
		return nil, fmt.Errorf("%s has unsupported type %s", field.Key, field.Type())
	}
}

// keyArgument takes the key from the first argument or the --key flag.
func keyArgument(cmd *cobra.Command, args []string) (config.Field, error) {
	key := lo.Must(cmd.Flags().GetString("key"))
	if len(args) > 0 {
		key = args[0]
	}
	if key == "" {
		return config.Field{}, errors.New("key is required as an argument or --key flag")
	}
	return lookupField(key)
}

func configFile() string {
	return filepath.Join(where.Config(), constant.App+".toml")
}

// writeConfig persists viper, creating the file on first use.
func writeConfig() error {
	err := viper.WriteConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return viper.SafeWriteConfig()
	}
	return err
}

func printSuccess(format string, args ...any) {
	fmt.Printf("%s %s\n", style.Fg(color.Green)(icon.Get(icon.Success)), fmt.Sprintf(format, args...))
}

func completionConfigKeys(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return lo.Keys(config.Default), cobra.ShellCompDirectiveNoFileComp
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
	Long: `Manage configuration settings.

The backend location, tracking cadence, completion thresholds and retry policy
are all configurable. Run "` + constant.App + ` config info" to list every key.`,
}

var configInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show settings with their description, current value and default",
	Run: func(cmd *cobra.Command, _ []string) {
		fields := lo.Values(config.Default)
		if keys := lo.Must(cmd.Flags().GetStringSlice("key")); len(keys) > 0 {
			fields = fields[:0]
			for _, k := range keys {
				field, err := lookupField(k)
				handleErr(err)
				fields = append(fields, field)
			}
		}
		slices.SortFunc(fields, func(a, b config.Field) int { return strings.Compare(a.Key, b.Key) })

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(fields))
			return
		}

		for i, field := range fields {
			if i > 0 {
				fmt.Print("\n\n")
			}
			fmt.Print(field.Pretty())
		}
		fmt.Println()
	},
}

var configSetCmd = &cobra.Command{
	Use:               "set [key] [value...]",
	Short:             "Set a setting and save it to the config file",
	ValidArgsFunction: completionConfigKeys,
	Run: func(cmd *cobra.Command, args []string) {
		field, err := keyArgument(cmd, args)
		handleErr(err)

		raw := lo.Must(cmd.Flags().GetStringSlice("value"))
		if len(args) > 1 {
			raw = args[1:]
		}

		value, err := parseValue(field, raw)
		handleErr(err)

		viper.Set(field.Key, value)
		handleErr(writeConfig())
		printSuccess("%s is now %s", style.Fg(color.Purple)(field.Key), style.Fg(color.Yellow)(fmt.Sprint(value)))
	},
}

var configGetCmd = &cobra.Command{
	Use:               "get [key]",
	Short:             "Print the current value of a setting",
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completionConfigKeys,
	Run: func(cmd *cobra.Command, args []string) {
		field, err := keyArgument(cmd, args)
		handleErr(err)
		fmt.Println(viper.Get(field.Key))
	},
}

var configWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Write the current settings to the config file",
	Run: func(cmd *cobra.Command, _ []string) {
		path := configFile()
		if lo.Must(cmd.Flags().GetBool("force")) {
			if err := filesystem.API().Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				handleErr(err)
			}
		}

		handleErr(viper.SafeWriteConfig())
		printSuccess("wrote config to %s", path)
	},
}

var configDeleteCmd = &cobra.Command{
	Use:     "delete",
	Aliases: []string{"remove"},
	Short:   "Delete the config file",
	Run: func(*cobra.Command, []string) {
		handleErr(filesystem.API().Remove(configFile()))
		printSuccess("deleted config")
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore a setting, or all of them, to the default",
	PreRun: func(cmd *cobra.Command, _ []string) {
		if !cmd.Flags().Changed("key") && !cmd.Flags().Changed("all") {
			handleErr(errors.New("either --key or --all must be set"))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("all")) {
			for k, field := range config.Default {
				viper.Set(k, field.Value)
			}
			handleErr(writeConfig())
			printSuccess("reset every setting")
			return
		}

		field, err := keyArgument(cmd, args)
		handleErr(err)

		viper.Set(field.Key, field.Value)
		handleErr(writeConfig())
		printSuccess("reset %s to %s", style.Fg(color.Purple)(field.Key), style.Fg(color.Yellow)(fmt.Sprint(field.Value)))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInfoCmd, configSetCmd, configGetCmd, configWriteCmd, configDeleteCmd, configResetCmd)

	configInfoCmd.Flags().StringSliceP("key", "k", nil, "only show these keys")
	configInfoCmd.Flags().BoolP("json", "j", false, "output as json")
	_ = configInfoCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)

	configSetCmd.Flags().StringP("key", "k", "", "key to set")
	configSetCmd.Flags().StringSliceP("value", "v", nil, "value to set")
	_ = configSetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)

	configGetCmd.Flags().StringP("key", "k", "", "key to print")
	_ = configGetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)

	configWriteCmd.Flags().BoolP("force", "f", false, "overwrite an existing config file")

	configResetCmd.Flags().StringP("key", "k", "", "key to reset")
	configResetCmd.Flags().BoolP("all", "a", false, "reset every key")
	configResetCmd.MarkFlagsMutuallyExclusive("key", "all")
	_ = configResetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
}
