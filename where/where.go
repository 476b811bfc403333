// Package where resolves the directories and files lessontrack keeps on disk.
package where

import (
	"os"
	"path/filepath"

	"github.com/lessontrack/lessontrack/constant"
	"github.com/lessontrack/lessontrack/filesystem"
	"github.com/samber/lo"
)

// EnvConfigPath overrides the config directory.
const EnvConfigPath = "LESSONTRACK_CONFIG_PATH"

// dir creates path when missing and returns it.
func dir(path string) string {
	lo.Must0(filesystem.API().MkdirAll(path, os.ModePerm))
	return path
}

// Config is the directory holding lessontrack.toml, the outbox and the history.
func Config() string {
	if custom, ok := os.LookupEnv(EnvConfigPath); ok {
		return dir(custom)
	}
	return dir(filepath.Join(lo.Must(os.UserConfigDir()), constant.App))
}

// Cache holds data that can be rebuilt from the backend.
func Cache() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "cache"
	}
	return dir(filepath.Join(base, constant.App))
}

// Logs holds one log file per day.
func Logs() string {
	return dir(filepath.Join(Config(), "logs"))
}

// Temp holds player IPC sockets.
func Temp() string {
	return dir(filepath.Join(os.TempDir(), constant.App))
}

// Outbox is the JSON lines file of completions waiting for delivery.
func Outbox() string {
	return filepath.Join(Config(), "outbox.jsonl")
}

// History is the registry of recently watched lessons.
func History() string {
	return filepath.Join(Config(), "history.json")
}

// Progress is the cache of the last pulled course progress.
func Progress() string {
	return filepath.Join(Cache(), "progress.json")
}
