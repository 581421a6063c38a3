package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photokeep/photosync/internal/config"
	"github.com/photokeep/photosync/pkg/conflicts"
)

func TestParseSince(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, got time.Time)
	}{
		{
			name:  "empty means zero",
			input: "",
			check: func(t *testing.T, got time.Time) {
				assert.True(t, got.IsZero())
			},
		},
		{
			name:  "duration",
			input: "24h",
			check: func(t *testing.T, got time.Time) {
				assert.WithinDuration(t, time.Now().Add(-24*time.Hour), got, time.Minute)
			},
		},
		{
			name:  "rfc3339",
			input: "2024-06-01T12:00:00Z",
			check: func(t *testing.T, got time.Time) {
				assert.Equal(t, 2024, got.Year())
				assert.Equal(t, 12, got.Hour())
			},
		},
		{
			name:  "plain date",
			input: "2024-06-01",
			check: func(t *testing.T, got time.Time) {
				assert.Equal(t, time.June, got.Month())
			},
		},
		{
			name:    "garbage",
			input:   "yesterday-ish",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSince(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestLoadDecisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	raw := `[{"photo_id":"p1","conflict_key":"metadata_mismatch|caption|a|b","choice":"use_observed"}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	decisions, err := loadDecisions(path)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "p1", decisions[0].PhotoID)
	assert.Equal(t, conflicts.ChoiceUseObserved, decisions[0].Choice)

	none, err := loadDecisions("")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = loadDecisions(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestScaffoldRepo(t *testing.T) {
	root := t.TempDir()
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	require.NoError(t, scaffoldRepo(cmd, root))

	assert.DirExists(t, filepath.Join(root, "photos"))
	assert.DirExists(t, filepath.Join(root, "blobs"))
	assert.FileExists(t, filepath.Join(root, "services.yaml"))
	assert.FileExists(t, filepath.Join(root, "photosync.yaml"))
	assert.FileExists(t, filepath.Join(root, ".gitignore"))

	reg, err := config.LoadRegistry(filepath.Join(root, "services.yaml"))
	require.NoError(t, err)
	require.Len(t, reg.Services, 1)
	assert.False(t, reg.Services[0].Enabled)

	// Re-running leaves existing files alone.
	require.NoError(t, scaffoldRepo(cmd, root))
}

func TestDetermineLogLevel(t *testing.T) {
	assert.Equal(t, "debug", determineLogLevel(&Config{Verbose: true}))
	assert.Equal(t, "warn", determineLogLevel(&Config{Quiet: true}))
	assert.Equal(t, "warn", determineLogLevel(&Config{Verbose: true, Quiet: true}))
	assert.Equal(t, "error", determineLogLevel(&Config{LogLevel: "error"}))
	assert.Equal(t, "info", determineLogLevel(&Config{LogLevel: "bogus"}))
	assert.Equal(t, "info", determineLogLevel(&Config{}))
}

func TestUpdateFromFlags(t *testing.T) {
	cfg := &Config{Format: "table", LogLevel: "info"}
	cfg.UpdateFromFlags(true, false, true, "", "")

	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "table", cfg.Format)
	assert.Equal(t, "info", cfg.LogLevel)

	cfg.UpdateFromFlags(false, false, false, "json", "debug")
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "debug", cfg.LogLevel)
}
