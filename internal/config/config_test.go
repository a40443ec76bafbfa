package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAgent(t *testing.T) {
	path := writeFile(t, "ids.yaml", `
camera:
  id: A
  device: /dev/video0
server:
  host: 10.0.0.5
detect:
  confidence: 0.4
`)

	cfg, err := LoadAgent(path)
	require.NoError(t, err)

	assert.Equal(t, "A", cfg.Camera.ID)
	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, 0.4, cfg.Detect.Confidence)
	// Defaults fill the rest.
	assert.Equal(t, 960, cfg.Camera.Width)
	assert.Equal(t, 5000, cfg.Server.EventPort)
	assert.Equal(t, 4000, cfg.Server.VideoPort)
	assert.Equal(t, 90, cfg.Stream.Quality)
	assert.Equal(t, 65000, cfg.Stream.MaxDatagram)
	assert.Equal(t, 20, cfg.Detect.LostThreshold)
}

func TestLoadAgent_RequiresCameraID(t *testing.T) {
	path := writeFile(t, "ids.yaml", "server:\n  host: localhost\n")

	_, err := LoadAgent(path)
	assert.ErrorContains(t, err, "camera.id")
}

func TestLoadServer_EnvOverrides(t *testing.T) {
	path := writeFile(t, "server.yaml", `
database:
  dsn: postgres://file-dsn
redis:
  addr: file:6379
`)
	t.Setenv("FALCON_DB_DSN", "postgres://env-dsn")
	t.Setenv("FALCON_REDIS_ADDR", "env:6379")

	cfg, err := LoadServer(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-dsn", cfg.Database.DSN)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, ":5000", cfg.Listen.Ingest)
	assert.Equal(t, ":5300", cfg.Listen.Pilot)
	assert.Equal(t, 30, cfg.Dispatch.FrameBuffer)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.RunwayHold)
}

func TestLoadHSV_MissingFileUsesDefaults(t *testing.T) {
	h, err := LoadHSV(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHSV(), h)
}

func TestLoadHSV_PartialOverride(t *testing.T) {
	path := writeFile(t, "hsv.yaml", `
vest:
  hue_lo: 15
  hue_hi: 60
  sat_min: 0.5
  val_min: 0.5
  min_coverage: 0.12
`)

	h, err := LoadHSV(path)
	require.NoError(t, err)
	assert.Equal(t, 15.0, h.Vest.HueLo)
	assert.Equal(t, 0.12, h.Vest.MinCoverage)
	// Untouched windows keep defaults.
	assert.Equal(t, DefaultHSV().VehicleBlack, h.VehicleBlack)
}

func TestWatchHSV_ReloadOnWrite(t *testing.T) {
	path := writeFile(t, "hsv.yaml", "vest:\n  hue_lo: 10\n  hue_hi: 50\n  sat_min: 0.4\n  val_min: 0.5\n  min_coverage: 0.1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan HSV, 4)
	WatchHSV(ctx, path, func(h HSV) { changes <- h })

	require.NoError(t, os.WriteFile(path, []byte("vest:\n  hue_lo: 25\n  hue_hi: 50\n  sat_min: 0.4\n  val_min: 0.5\n  min_coverage: 0.1\n"), 0o644))

	select {
	case h := <-changes:
		assert.Equal(t, 25.0, h.Vest.HueLo)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed after write")
	}
}
