package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/guseggert/nmproxy/registry"
)

// Daemon is the accepting side's configuration file.
type Daemon struct {
	RegistryDir string `toml:"registry_dir"`
	LogLevel    string `toml:"log_level"`
	Listen      Listen `toml:"listen"`
}

type Listen struct {
	// Socket is a unix socket path to listen on. Empty means socket activation.
	Socket string `toml:"socket"`
	// HTTP is an optional address serving the WebSocket transport.
	HTTP string `toml:"http"`
}

func DefaultDaemon() Daemon {
	return Daemon{
		RegistryDir: registry.DefaultDir,
		LogLevel:    "info",
	}
}

// LoadDaemon decodes the TOML file at path over the defaults.
// An empty path returns the defaults. Keys the file sets but Daemon does not know are an error.
func LoadDaemon(path string) (Daemon, error) {
	cfg := DefaultDaemon()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Daemon{}, fmt.Errorf("decoding config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Daemon{}, fmt.Errorf("config %q: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

func (d Daemon) Validate() error {
	if d.RegistryDir == "" {
		return errors.New("config: registry_dir must not be empty")
	}
	return nil
}
