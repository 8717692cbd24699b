// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Archive is the capability set shared by every supported container format.
//
// An Archive is not safe for concurrent use.
type Archive interface {
	// Format reports the container format.
	Format() Format

	// Files returns a copy of the entries in insertion order.
	Files() []Entry

	// Contains reports whether an entry with exactly this name exists.
	Contains(name string) bool

	// AddFile inserts or replaces the entry name with a copy of data.
	AddFile(name string, data []byte) error

	// AddFileFromPath inserts or replaces the entry name with the contents of
	// srcPath. The file is not read until the entry's bytes are needed.
	AddFileFromPath(name, srcPath string) error

	// ReadFile returns the entry's bytes. If buf has enough capacity it is
	// used as the destination; otherwise a new slice is allocated.
	ReadFile(name string, buf []byte) ([]byte, error)

	// ExtractFile writes the entry's bytes to target.
	ExtractFile(name, target string) error

	// RemoveFile deletes the entry. The bytes are dropped at the next Write.
	RemoveFile(name string) error

	// Write serializes the current state. An empty filename reuses the path
	// the archive was read from or last written to.
	Write(filename string) error

	// Good reports whether the archive is usable (no fatal load error).
	Good() bool

	// Err returns the fatal load error, or nil.
	Err() error

	// LastErrorString describes the fatal load error, or "No error".
	LastErrorString() string

	// DumpInfo writes a diagnostic summary to w.
	DumpInfo(w io.Writer) error

	// Close releases any file handles held by the archive.
	Close() error
}

var (
	_ Archive = (*VPK1Archive)(nil)
	_ Archive = (*WADArchive)(nil)
)

// Option configures an archive engine.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for read/write progress and warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Open reads the archive at path, picking the engine from the file's magic.
// VPK archives are opened with DefaultVPK1Settings and WAD files with
// DefaultWADSettings.
func Open(path string, opts ...Option) (Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	var magic [4]byte
	_, err = io.ReadFull(file, magic[:])
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}

	switch {
	case binary.LittleEndian.Uint32(magic[:]) == vpk1Signature:
		return OpenVPK1(path, DefaultVPK1Settings(), opts...)
	case bytes.Equal(magic[:], iwadMagic[:]), bytes.Equal(magic[:], pwadMagic[:]):
		return OpenWAD(path, DefaultWADSettings(), opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
	}
}

// sizedBuffer returns buf[:size] when buf can hold size bytes, else a new slice.
func sizedBuffer(buf []byte, size int64) []byte {
	if int64(cap(buf)) >= size {
		return buf[:size]
	}
	return make([]byte, size)
}

// readSourceFile reads an external file that must still be size bytes long.
func readSourceFile(path string, buf []byte, size int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
	defer file.Close()

	if err := checkSourceSize(file, path, size); err != nil {
		return nil, err
	}
	out := sizedBuffer(buf, size)
	if _, err := io.ReadFull(file, out); err != nil {
		return nil, fmt.Errorf("read source %s: %w", path, err)
	}
	return out, nil
}

func checkSourceSize(file *os.File, path string, size int64) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat source %s: %w", path, err)
	}
	if info.Size() != size {
		return fmt.Errorf("%w: %s is %d bytes, expected %d", ErrSizeMismatch, path, info.Size(), size)
	}
	return nil
}

// statSource returns the size of a regular file to be added by reference.
func statSource(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("stat source: %s is not a regular file", path)
	}
	return info.Size(), nil
}

// writeTarget writes data to target, creating parent directories.
func writeTarget(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// replaceFile moves a finished temp file over path.
func replaceFile(tempPath, path string) error {
	if err := os.Rename(tempPath, path); err == nil {
		return nil
	}
	os.Remove(path)
	if err := os.Rename(tempPath, path); err != nil {
		if err := copyFile(tempPath, path); err != nil {
			return err
		}
		os.Remove(tempPath)
	}
	return nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
