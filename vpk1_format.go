// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// VPK version 1 format constants
const (
	// Signature 0x55AA1234 in little-endian
	vpk1Signature = 0x55AA1234

	vpk1Version = 1

	// Every directory record ends with this sentinel
	vpk1Terminator = 0xFFFF

	// Archive index meaning "data follows the tree in the directory file"
	vpk1DirArchiveIndex = 0x7FFF

	vpk1HeaderSize = 12 // bytes
	vpk1RecordSize = 18 // bytes

	// Largest preload that fits the 16-bit PreloadBytes field
	vpk1MaxPreload = 0xFFFF

	// Stand-in for an empty extension, directory or base name in the tree
	vpk1EmptyComponent = " "
)

// vpk1Header is the fixed header at the start of a directory file.
type vpk1Header struct {
	Signature uint32 // 0x55AA1234
	Version   uint32 // 1
	TreeSize  uint32 // Size of the directory tree following the header
}

// VPK1Record is the directory record stored after each file name in the tree.
type VPK1Record struct {
	CRC          uint32 // CRC-32 of the complete entry data
	PreloadBytes uint16 // Inline bytes following the record
	ArchiveIndex uint16 // Numbered payload file, or 0x7FFF for the directory file
	EntryOffset  uint32 // Offset of the payload in that file
	EntryLength  uint32 // Payload length, excluding preload bytes
	Terminator   uint16 // Always 0xFFFF
}

// newVPK1Record returns an empty record with the terminator in place.
func newVPK1Record() VPK1Record {
	return VPK1Record{Terminator: vpk1Terminator}
}

// readVPK1Header reads the header from a reader
func readVPK1Header(r io.Reader) (*vpk1Header, error) {
	h := &vpk1Header{}
	if err := binary.Read(r, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return h, nil
}

// writeVPK1Header writes the header to a writer
func writeVPK1Header(w io.Writer, h *vpk1Header) error {
	return binary.Write(w, binary.LittleEndian, h)
}

// treeReader walks the in-memory directory tree.
type treeReader struct {
	buf []byte
	pos int
}

// readString reads a NUL terminated string. A lone space decodes to "".
func (t *treeReader) readString() (string, error) {
	end := bytes.IndexByte(t.buf[t.pos:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at tree offset %d", ErrCorruptDirectory, t.pos)
	}
	s := string(t.buf[t.pos : t.pos+end])
	t.pos += end + 1
	return s, nil
}

// readRecord reads a directory record and checks its terminator.
func (t *treeReader) readRecord() (VPK1Record, error) {
	var rec VPK1Record
	if len(t.buf)-t.pos < vpk1RecordSize {
		return rec, fmt.Errorf("%w: truncated record at tree offset %d", ErrCorruptDirectory, t.pos)
	}
	if err := binary.Read(bytes.NewReader(t.buf[t.pos:t.pos+vpk1RecordSize]), binary.LittleEndian, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrCorruptDirectory, err)
	}
	if rec.Terminator != vpk1Terminator {
		return rec, fmt.Errorf("%w: terminator 0x%04X at tree offset %d", ErrCorruptDirectory, rec.Terminator, t.pos)
	}
	t.pos += vpk1RecordSize
	return rec, nil
}

// readBytes returns the next n bytes of the tree without copying.
func (t *treeReader) readBytes(n int) ([]byte, error) {
	if len(t.buf)-t.pos < n {
		return nil, fmt.Errorf("%w: truncated preload at tree offset %d", ErrCorruptDirectory, t.pos)
	}
	b := t.buf[t.pos : t.pos+n]
	t.pos += n
	return b, nil
}

// treeWriter builds the directory tree.
type treeWriter struct {
	bytes.Buffer
}

// writeString writes s NUL terminated; "" is written as a lone space so it
// is not mistaken for a level terminator.
func (t *treeWriter) writeString(s string) {
	if s == "" {
		s = vpk1EmptyComponent
	}
	t.WriteString(s)
	t.WriteByte(0)
}

// writeEnd terminates a tree level.
func (t *treeWriter) writeEnd() {
	t.WriteByte(0)
}

func (t *treeWriter) writeRecord(rec VPK1Record) {
	// bytes.Buffer writes never fail
	_ = binary.Write(&t.Buffer, binary.LittleEndian, &rec)
}

// decodeComponent maps the tree's blank marker back to an empty string.
func decodeComponent(s string) string {
	if s == vpk1EmptyComponent {
		return ""
	}
	return s
}

// vpk1Set names the files of one archive set: the directory file and the
// numbered payload files derived from the same base.
type vpk1Set struct {
	dirPath string // Directory file, as given or derived
	prefix  string // Directory plus base name, without "_dir"
	ext     string // Extension without the dot, may be empty
}

// newVPK1Set derives the set from a path such as "pak01_dir.vpk".
// When keepPath is false the directory file is renamed to <base>_dir.<ext>.
func newVPK1Set(path string, keepPath bool) vpk1Set {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	stem = strings.TrimSuffix(stem, "_dir")
	s := vpk1Set{
		dirPath: path,
		prefix:  stem,
		ext:     strings.TrimPrefix(ext, "."),
	}
	if !keepPath {
		s.dirPath = s.withSuffix("dir")
	}
	return s
}

func (s vpk1Set) withSuffix(suffix string) string {
	name := s.prefix + "_" + suffix
	if s.ext != "" {
		name += "." + s.ext
	}
	return name
}

// archivePath returns the path of numbered payload file index.
func (s vpk1Set) archivePath(index int) string {
	if index == vpk1DirArchiveIndex {
		return s.dirPath
	}
	return s.withSuffix(fmt.Sprintf("%03d", index))
}
