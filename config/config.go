// Package config loads the emulator's JSON configuration file (spec §6
// "Config file"): the three NAND/SD root paths every other package's
// storage layer is rooted at.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Config is the recognized top-level shape of the config file; any other
// key is ignored.
type Config struct {
	NandSystemPath string `json:"nand_system_path"`
	NandUserPath   string `json:"nand_user_path"`
	SdCardPath     string `json:"sd_card_path"`
}

// Default returns the config used when no config file is given, rooted
// relative to the working directory.
func Default() Config {
	return Config{
		NandSystemPath: "nand/system",
		NandUserPath:   "nand/user",
		SdCardPath:     "sdcard",
	}
}

// Load reads path, falling back to Default() (with its directories
// created on disk) when path doesn't exist. A present-but-malformed file
// is always an error; a missing file is not.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logrus.Infof("config: %s not found, using defaults", path)
		cfg := Default()
		return cfg, cfg.ensureDirs()
	}
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.ensureDirs()
}

func (c Config) ensureDirs() error {
	for _, dir := range []string{c.NandSystemPath, c.NandUserPath, c.SdCardPath} {
		if err := os.MkdirAll(filepath.Clean(dir), 0755); err != nil {
			return err
		}
	}
	return nil
}
