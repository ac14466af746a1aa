package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/guseggert/nmproxy/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDaemon(t *testing.T) {
	cases := []struct {
		name      string
		contents  string
		expCfg    Daemon
		expErrStr string
	}{
		{
			name:     "empty file keeps defaults",
			contents: "",
			expCfg:   DefaultDaemon(),
		},
		{
			name: "all fields",
			contents: `
registry_dir = "/etc/nmproxy/targets"
log_level = "debug"

[listen]
socket = "/run/nmp.sock"
http = "127.0.0.1:8080"
`,
			expCfg: Daemon{
				RegistryDir: "/etc/nmproxy/targets",
				LogLevel:    "debug",
				Listen:      Listen{Socket: "/run/nmp.sock", HTTP: "127.0.0.1:8080"},
			},
		},
		{
			name:      "unknown key",
			contents:  `registry = "/tmp"`,
			expErrStr: "unknown keys: registry",
		},
		{
			name:      "empty registry dir",
			contents:  `registry_dir = ""`,
			expErrStr: "registry_dir must not be empty",
		},
		{
			name:      "bad syntax",
			contents:  `registry_dir = `,
			expErrStr: "decoding config",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nmproxyd.toml")
			require.NoError(t, os.WriteFile(path, []byte(c.contents), 0o644))

			cfg, err := LoadDaemon(path)
			if c.expErrStr != "" {
				require.ErrorContains(t, err, c.expErrStr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expCfg, cfg)
		})
	}
}

func TestLoadDaemonNoPath(t *testing.T) {
	cfg, err := LoadDaemon("")
	require.NoError(t, err)
	assert.Equal(t, registry.DefaultDir, cfg.RegistryDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestClientFromEnv(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	c := ClientFromEnv(getenv, "/usr/lib/mozilla/native-messaging-hosts/echo")
	assert.Equal(t, "echo", c.Target)
	assert.Equal(t, DefaultSocket(), c.Addr)
	assert.Empty(t, c.LogLevel)

	env[EnvAddr] = "ws://127.0.0.1:8080/session"
	env[EnvTarget] = "other"
	env[EnvLogLevel] = "debug"
	c = ClientFromEnv(getenv, "echo")
	assert.Equal(t, "other", c.Target)
	assert.Equal(t, "ws://127.0.0.1:8080/session", c.Addr)
	assert.Equal(t, "debug", c.LogLevel)
}
