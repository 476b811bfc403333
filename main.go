// Package main is the entry point of lessontrack.
package main

import (
	"github.com/lessontrack/lessontrack/cmd"
	"github.com/lessontrack/lessontrack/config"
	"github.com/lessontrack/lessontrack/log"
	"github.com/samber/lo"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
