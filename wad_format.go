// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"bytes"
	"encoding/binary"
	"io"
)

// WAD format constants
const (
	wadHeaderSize    = 12 // bytes
	wadDirectorySize = 16 // bytes per directory record
	wadNameSize      = 8  // bytes, NUL padded
)

var (
	iwadMagic = [4]byte{'I', 'W', 'A', 'D'}
	pwadMagic = [4]byte{'P', 'W', 'A', 'D'}
)

// wadHeader is the fixed header at the start of a WAD file. Counts and
// offsets are signed, the way the engines read them.
type wadHeader struct {
	Magic     [4]byte // "IWAD" or "PWAD"
	Entries   int32   // Number of directory records
	DirOffset int32   // Offset of the directory
}

// wadDirEntry is one record of the directory at the end of a WAD file.
type wadDirEntry struct {
	Offset int32
	Size   int32
	Name   [wadNameSize]byte
}

func readWADHeader(r io.Reader) (*wadHeader, error) {
	h := &wadHeader{}
	if err := binary.Read(r, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return h, nil
}

func writeWADHeader(w io.Writer, h *wadHeader) error {
	return binary.Write(w, binary.LittleEndian, h)
}

func readWADDirectory(r io.Reader, count int) ([]wadDirEntry, error) {
	dir := make([]wadDirEntry, count)
	if err := binary.Read(r, binary.LittleEndian, dir); err != nil {
		return nil, err
	}
	return dir, nil
}

func writeWADDirectory(w io.Writer, dir []wadDirEntry) error {
	return binary.Write(w, binary.LittleEndian, dir)
}

// lumpName decodes a stored name, which ends at the first NUL.
func lumpName(raw [wadNameSize]byte) string {
	if i := bytes.IndexByte(raw[:], 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw[:])
}

// encodeLumpName NUL pads name into the fixed field. Callers truncate first.
func encodeLumpName(name string) [wadNameSize]byte {
	var raw [wadNameSize]byte
	copy(raw[:], name)
	return raw
}

// truncateLumpName cuts name to the first 8 bytes. The cut is byte based,
// not rune based, matching what the fixed field can hold. The boolean
// reports whether anything was dropped.
func truncateLumpName(name string) (string, bool) {
	if len(name) <= wadNameSize {
		return name, false
	}
	return name[:wadNameSize], true
}
