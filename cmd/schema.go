package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/history"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().BoolP("progress", "p", false, "Schema of the progress records printed by progress --json")
	schemaCmd.Flags().BoolP("history", "H", false, "Schema of the watch history file")
	schemaCmd.MarkFlagsMutuallyExclusive("progress", "history")
}

// schemaCmd prints the JSON schema of the course manifest.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schemas for course manifests and progress records",
	Run: func(cmd *cobra.Command, args []string) {
		reflector := new(jsonschema.Reflector)
		reflector.Anonymous = true
		reflector.Namer = func(t reflect.Type) string {
			name := t.Name()
			switch strings.ToLower(name) {
			case "record", "entry":
				return filepath.Base(t.PkgPath()) + "." + name
			}

			return name
		}

		var schema *jsonschema.Schema

		switch {
		case lo.Must(cmd.Flags().GetBool("progress")):
			schema = reflector.Reflect([]reconcile.Record{})
		case lo.Must(cmd.Flags().GetBool("history")):
			schema = reflector.Reflect(map[string]*history.Entry{})
		default:
			schema = reflector.Reflect(&course.Course{})
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		handleErr(encoder.Encode(schema))
	},
}
