package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntbridge/ntbridge-go/pkg/config"
	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/value"
	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ntbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server: 10.0.0.2:5810
log_level: debug
router:
  max_attempts: 4
`), 0o644))

	cfg, err := loadConfig([]string{
		"--config", path,
		"--log-level", "warn",
		"--connect-timeout", "500ms",
		"-i",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2:5810", cfg.Server)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, 4, cfg.Router.MaxAttempts)
	assert.True(t, cfg.Interactive)
	assert.Equal(t, config.Default().Listen, cfg.Listen)
}

func TestLoadConfigUnsetFlagsKeepFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ntbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discover: true\n"), 0o644))

	cfg, err := loadConfig([]string{"--config", path})
	require.NoError(t, err)
	assert.True(t, cfg.Discover)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := loadConfig([]string{"--server", "no-port"})
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = loadConfig([]string{"extra"})
	assert.Error(t, err)
}

type recordingSink struct {
	events []string
	err    error
}

func (r *recordingSink) Emit(event string, _ any) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	failing := &recordingSink{err: errors.New("ui gone")}
	ok := &recordingSink{}

	err := fanout{failing, ok}.Emit("/speed", 1.0)
	assert.ErrorContains(t, err, "ui gone")
	assert.Equal(t, []string{"/speed"}, failing.events)
	assert.Equal(t, []string{"/speed"}, ok.events)

	assert.NoError(t, fanout{ok}.Emit("/speed", 2.0))
}

func TestRunCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ntcap")
	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, dir := range []log.Direction{log.DirectionOut, log.DirectionIn} {
		data, err := wire.Encode(wire.KindPublish, wire.Publish{PubUID: 1, Name: "/x", Type: value.TypeDouble})
		require.NoError(t, err)
		fl.Log(log.WireEvent("conn-1", log.RoleClient, dir, data))
	}
	require.NoError(t, fl.Close())

	var out bytes.Buffer
	require.NoError(t, runCapture([]string{"view", "--direction", "in", path}, &out))
	assert.Contains(t, out.String(), " IN  WIRE PUBLISH")
	assert.NotContains(t, out.String(), " OUT ")

	out.Reset()
	require.NoError(t, runCapture([]string{"stats", path}, &out))
	assert.Contains(t, out.String(), "Total Events: 2")

	assert.Error(t, runCapture([]string{"view", "--layer", "bogus", path}, &out))
	assert.Error(t, runCapture([]string{"bogus"}, &out))
	assert.Error(t, runCapture(nil, &out))
}
