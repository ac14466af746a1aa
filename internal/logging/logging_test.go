package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in     string
		exp    zapcore.Level
		expErr bool
	}{
		{in: "", exp: zapcore.InfoLevel},
		{in: "debug", exp: zapcore.DebugLevel},
		{in: " WARN ", exp: zapcore.WarnLevel},
		{in: "error", exp: zapcore.ErrorLevel},
		{in: "chatty", expErr: true},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			l, err := ParseLevel(c.in)
			if c.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.exp, l)
		})
	}
}

func TestNewClient(t *testing.T) {
	l, err := NewClient("", "")
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.ErrorLevel))

	path := filepath.Join(t.TempDir(), "client.log")
	l, err = NewClient("debug", path)
	require.NoError(t, err)
	l.Debugw("hello from the client", "Target", "echo")
	require.NoError(t, l.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello from the client")
}
