// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const mib = 1 << 20

// VPK1Settings controls how a VPK archive is read and written.
type VPK1Settings struct {
	// KeepPreloadData retains preload bytes in memory after reading and lets
	// Write place small entries in the directory file. When false, preload
	// bytes are dropped after parsing and fetched again on demand.
	KeepPreloadData bool `yaml:"keep_preload_data"`

	// KeepHandles keeps payload file handles open until Close instead of
	// reopening them for every read.
	KeepHandles bool `yaml:"keep_handles"`

	// ReadOnly rejects AddFile, AddFileFromPath, RemoveFile and Write.
	ReadOnly bool `yaml:"readonly"`

	// SizeBudget is the maximum number of payload bytes per numbered file.
	// An entry larger than the budget gets a file of its own.
	SizeBudget int64 `yaml:"size_budget"`

	// MaxPreloadSize is the largest entry stored inline in the directory
	// file. Values above 65535 are clamped, the record field is 16 bits.
	MaxPreloadSize int64 `yaml:"max_preload_size"`
}

// DefaultVPK1Settings returns the settings used when none are given:
// preload data and handles kept, writable, 512 MiB per payload file and
// entries up to 2048 bytes stored inline.
func DefaultVPK1Settings() VPK1Settings {
	return VPK1Settings{
		KeepPreloadData: true,
		KeepHandles:     true,
		ReadOnly:        false,
		SizeBudget:      512 * mib,
		MaxPreloadSize:  2048,
	}
}

func (s VPK1Settings) normalized() VPK1Settings {
	if s.SizeBudget <= 0 {
		s.SizeBudget = DefaultVPK1Settings().SizeBudget
	}
	if s.MaxPreloadSize < 0 {
		s.MaxPreloadSize = 0
	}
	if s.MaxPreloadSize > vpk1MaxPreload {
		s.MaxPreloadSize = vpk1MaxPreload
	}
	return s
}

// WADSettings controls how a WAD archive is read.
type WADSettings struct {
	// KeepFileHandles keeps the WAD file open until Close.
	KeepFileHandles bool `yaml:"keep_file_handles"`
}

// DefaultWADSettings returns the settings used when none are given.
func DefaultWADSettings() WADSettings {
	return WADSettings{KeepFileHandles: true}
}

// LoadVPK1Settings reads VPK settings from a YAML file. Keys missing from
// the file keep their DefaultVPK1Settings value.
func LoadVPK1Settings(path string) (VPK1Settings, error) {
	settings := DefaultVPK1Settings()
	if err := loadYAML(path, &settings); err != nil {
		return VPK1Settings{}, err
	}
	return settings, nil
}

// LoadWADSettings reads WAD settings from a YAML file. Keys missing from
// the file keep their DefaultWADSettings value.
func LoadWADSettings(path string) (WADSettings, error) {
	settings := DefaultWADSettings()
	if err := loadYAML(path, &settings); err != nil {
		return WADSettings{}, err
	}
	return settings, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}
	return nil
}
