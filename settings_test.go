// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVPK1Settings(t *testing.T) {
	s := DefaultVPK1Settings()
	assert.True(t, s.KeepPreloadData)
	assert.True(t, s.KeepHandles)
	assert.False(t, s.ReadOnly)
	assert.Equal(t, int64(512*1024*1024), s.SizeBudget)
	assert.Equal(t, int64(2048), s.MaxPreloadSize)

	assert.True(t, DefaultWADSettings().KeepFileHandles)
}

func TestVPK1SettingsNormalized(t *testing.T) {
	tests := []struct {
		name        string
		in          VPK1Settings
		wantBudget  int64
		wantPreload int64
	}{
		{"zero budget", VPK1Settings{SizeBudget: 0, MaxPreloadSize: 10}, 512 * mib, 10},
		{"negative budget", VPK1Settings{SizeBudget: -5, MaxPreloadSize: 10}, 512 * mib, 10},
		{"negative preload", VPK1Settings{SizeBudget: 100, MaxPreloadSize: -1}, 100, 0},
		{"preload over field", VPK1Settings{SizeBudget: 100, MaxPreloadSize: 1 << 20}, 100, 0xFFFF},
		{"unchanged", VPK1Settings{SizeBudget: 100, MaxPreloadSize: 64}, 100, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalized()
			assert.Equal(t, tt.wantBudget, got.SizeBudget)
			assert.Equal(t, tt.wantPreload, got.MaxPreloadSize)
		})
	}

	archive := NewVPK1(VPK1Settings{MaxPreloadSize: 100000})
	assert.Equal(t, int64(0xFFFF), archive.Settings().MaxPreloadSize)
}

func TestLoadVPK1Settings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpk.yaml")
	config := `
readonly: true
size_budget: 1048576
keep_handles: false
`
	require.NoError(t, os.WriteFile(path, []byte(config), 0644))

	s, err := LoadVPK1Settings(path)
	require.NoError(t, err)
	assert.True(t, s.ReadOnly)
	assert.False(t, s.KeepHandles)
	assert.Equal(t, int64(1048576), s.SizeBudget)

	// Keys missing from the file keep their defaults
	assert.True(t, s.KeepPreloadData)
	assert.Equal(t, int64(2048), s.MaxPreloadSize)
}

func TestLoadWADSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keep_file_handles: false\n"), 0644))

	s, err := LoadWADSettings(path)
	require.NoError(t, err)
	assert.False(t, s.KeepFileHandles)

	_, err = LoadWADSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("keep_file_handles: [1, 2"), 0644))
	_, err = LoadWADSettings(bad)
	assert.Error(t, err)
}

func TestWithLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	archive := NewWAD(DefaultWADSettings(), WithLogger(logger))
	require.NoError(t, archive.AddFile("VERYLONGNAME", []byte("x")))
	assert.Contains(t, logs.String(), "wad lump name truncated")
	assert.Contains(t, logs.String(), "stored=VERYLONG")

	logs.Reset()
	vpk := NewVPK1(testVPK1Settings(), WithLogger(logger))
	require.NoError(t, vpk.AddFile("a.txt", []byte("x")))
	require.NoError(t, vpk.Write(filepath.Join(t.TempDir(), "log_dir.vpk")))
	assert.Contains(t, logs.String(), "wrote vpk")
}
