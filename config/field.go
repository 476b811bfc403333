package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/constant"
	"github.com/lessontrack/lessontrack/style"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Field is a registered setting with its default value.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env is the environment variable that overrides the field.
func (f *Field) Env() string {
	name := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	return strings.ToUpper(constant.App) + "_" + strings.TrimPrefix(name, strings.ToUpper(constant.App)+"_")
}

// Type is the Go type name of the default value.
func (f *Field) Type() string {
	return fmt.Sprintf("%T", f.Value)
}

// Pretty renders the field for the config info command.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(fieldTemplate.Execute(&b, f))
	return b.String()
}

// MarshalJSON includes the current value next to the default one.
func (f *Field) MarshalJSON() ([]byte, error) {
	type field struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
		Env         string `json:"env"`
	}

	return json.Marshal(field{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.Type(),
		Env:         f.Env(),
	})
}

func highlight(v any) string {
	switch v := v.(type) {
	case bool:
		if v {
			return style.Fg(color.Green)("true")
		}
		return style.Fg(color.Red)("false")
	case string:
		return style.Fg(color.Yellow)(fmt.Sprintf("%q", v))
	default:
		return style.Fg(color.Cyan)(fmt.Sprint(v))
	}
}

var fieldTemplate = template.Must(template.New("field").Funcs(template.FuncMap{
	"faint": style.Faint,
	"key":   style.Fg(color.Purple),
	"label": style.Fg(color.Blue),
	"hl":    highlight,
	"viper": viper.Get,
}).Parse(`{{ faint .Description }}
{{ label "Key:" }}     {{ key .Key }}
{{ label "Env:" }}     {{ .Env }}
{{ label "Value:" }}   {{ hl (viper .Key) }}
{{ label "Default:" }} {{ hl .Value }}
{{ label "Type:" }}    {{ .Type }}`))
