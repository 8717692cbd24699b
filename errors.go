// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import "errors"

// Fatal load errors. An archive that hit one of these reports Good() == false
// until it is read again successfully.
var (
	// ErrInvalidSignature is returned when the header magic does not match the format.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrWrongVersion is returned when a VPK header carries a version other than 1.
	ErrWrongVersion = errors.New("wrong version")

	// ErrCorruptDirectory is returned when the directory section is truncated,
	// points outside the file, or a record terminator is not 0xFFFF.
	ErrCorruptDirectory = errors.New("corrupt directory")
)

// Operational errors. These are returned per call and never change Good().
var (
	// ErrFileNotFound is returned when a name is not present in the archive.
	ErrFileNotFound = errors.New("file not found")

	// ErrReadOnly is returned by mutating calls on an archive opened read-only.
	ErrReadOnly = errors.New("archive is read-only")

	// ErrInvalidName is returned when a name cannot be split into directory,
	// base name and extension.
	ErrInvalidName = errors.New("invalid file name")

	// ErrNoFilename is returned by Write when no target was given and the
	// archive was never read from or written to a path.
	ErrNoFilename = errors.New("no filename to write to")

	// ErrNotLoaded is returned by calls on an archive whose last read failed.
	ErrNotLoaded = errors.New("archive not loaded")

	// ErrSizeMismatch is returned when a file added by path changed size
	// between AddFileFromPath and the moment its bytes are read.
	ErrSizeMismatch = errors.New("source size changed")

	// ErrUnknownFormat is returned by Open when the magic matches no supported format.
	ErrUnknownFormat = errors.New("unknown archive format")
)
