package mcfg

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// LoadFile layers configuration from a YAML file underneath whatever is
// already in the Store: a key already present (e.g. set by ParseCLI) is
// left alone, matching the CLI-wins precedence mcfg.SourceCLI establishes
// among configuration sources in the teacher library.
//
// A missing file is not an error -- the file is optional, the same way
// Server's RDB file load is non-fatal if absent.
func (s *Store) LoadFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	for key, val := range v.AllSettings() {
		s.SetDefault(key, fmt.Sprint(val))
	}
	return nil
}
