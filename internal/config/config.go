// Package config loads the handful of startup settings this core needs
// before any catalog is open: where the database directory lives, where
// scratch files for the external sorter go, how much memory run generation
// may use, how many tapes the merge phase gets, and where the persistent
// nailed-descriptor file is. Everything else a caller needs is passed as an
// explicit constructor argument elsewhere in this module (spec §6: this is
// a library, not a daemon with its own global config surface) — mirroring
// the teacher's split between "yaml-only" bootstrap keys and everything
// else that lives in its embedded database.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Settings is the decoded startup configuration.
type Settings struct {
	DatabaseDir       string        `mapstructure:"database-dir"`
	ScratchDir        string        `mapstructure:"scratch-dir"`
	MemoryBudgetBytes int           `mapstructure:"memory-budget-bytes"`
	TapeCount         int           `mapstructure:"tape-count"`
	NailedFilePath    string        `mapstructure:"nailed-file-path"`
	LockTimeout       time.Duration `mapstructure:"lock-timeout"`
}

func defaults() Settings {
	return Settings{
		ScratchDir:        "scratch",
		MemoryBudgetBytes: 64 << 20, // 64 MiB
		TapeCount:         6,        // M-1 input tapes for a 7-tape polyphase merge
		NailedFilePath:    "pg_internal.init",
		LockTimeout:       5 * time.Second,
	}
}

// Load reads settings from the config file at path (".yaml", ".yml", or
// ".toml", dispatched by extension the way viper does) layered over
// defaults, with DBCORE_-prefixed environment variables taking precedence
// (spec §6's ambient-stack carry-over of the teacher's yaml-then-env
// precedence). A missing file is not an error: Load returns the defaults.
func Load(path string) (Settings, error) {
	v := viper.New()
	s := defaults()
	v.SetDefault("database-dir", s.DatabaseDir)
	v.SetDefault("scratch-dir", s.ScratchDir)
	v.SetDefault("memory-budget-bytes", s.MemoryBudgetBytes)
	v.SetDefault("tape-count", s.TapeCount)
	v.SetDefault("nailed-file-path", s.NailedFilePath)
	v.SetDefault("lock-timeout", s.LockTimeout)

	v.SetEnvPrefix("DBCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !os.IsNotExist(statErr) {
			return Settings{}, fmt.Errorf("config: stat %s: %w", path, statErr)
		}
	}

	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: decode settings: %w", err)
	}
	if s.TapeCount < 2 {
		return Settings{}, fmt.Errorf("config: tape-count must be at least 2, got %d", s.TapeCount)
	}
	return s, nil
}

// tomlDoc mirrors Settings with toml tags and a string duration, since
// BurntSushi/toml's encoder has no time.Duration support of its own.
type tomlDoc struct {
	DatabaseDir       string `toml:"database-dir"`
	ScratchDir        string `toml:"scratch-dir"`
	MemoryBudgetBytes int    `toml:"memory-budget-bytes"`
	TapeCount         int    `toml:"tape-count"`
	NailedFilePath    string `toml:"nailed-file-path"`
	LockTimeout       string `toml:"lock-timeout"`
}

// WriteDefaultTOML writes a commented default dbcore.toml at path, for
// first-run bootstrapping. This goes through BurntSushi/toml directly
// rather than viper's writer, since only the direct encoder gives
// predictable key ordering for a file meant to be hand-edited afterward.
func WriteDefaultTOML(path string) error {
	s := defaults()
	doc := tomlDoc{
		DatabaseDir:       s.DatabaseDir,
		ScratchDir:        s.ScratchDir,
		MemoryBudgetBytes: s.MemoryBudgetBytes,
		TapeCount:         s.TapeCount,
		NailedFilePath:    s.NailedFilePath,
		LockTimeout:       s.LockTimeout.String(),
	}
	var buf bytes.Buffer
	buf.WriteString("# dbcore startup settings. Read once, before any catalog is opened.\n")
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("config: encode default settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
