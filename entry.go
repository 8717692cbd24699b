// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

// Format identifies the container format an archive or entry belongs to.
type Format int

const (
	// FormatNone marks an entry that carries no format specific data.
	FormatNone Format = iota

	// FormatVPK1 is the Valve pack format, version 1.
	FormatVPK1

	// FormatVPK2 is reserved for VPK version 2. No engine implements it.
	FormatVPK2

	// FormatWAD is the id Tech IWAD/PWAD lump format.
	FormatWAD
)

func (f Format) String() string {
	switch f {
	case FormatVPK1:
		return "vpk1"
	case FormatVPK2:
		return "vpk2"
	case FormatWAD:
		return "wad"
	default:
		return "none"
	}
}

// Entry is the metadata of one named payload inside an archive.
//
// Name is the full logical path and the key for every lookup. Dir, Base and
// Ext are its decomposition; for WAD lumps Dir and Ext are always empty.
// Size is the payload length. Offset is the byte offset of the payload in
// its container file: the payload file offset for VPK entries, the absolute
// file offset for WAD lumps. OnDisk reports whether the bytes currently
// exist in a container file; Dirty whether the entry changed since the last
// Write.
type Entry struct {
	Name   string
	Dir    string
	Base   string
	Ext    string
	Size   int64
	Offset int64
	OnDisk bool
	Dirty  bool

	data entryData
}

// Format reports which engine owns the entry.
func (e Entry) Format() Format {
	if e.data == nil {
		return FormatNone
	}
	return e.data.format()
}

// VPK1Record returns a copy of the entry's VPK directory record.
// The boolean is false for entries that do not belong to a VPK archive.
func (e Entry) VPK1Record() (VPK1Record, bool) {
	d, ok := e.data.(*vpk1Data)
	if !ok {
		return VPK1Record{}, false
	}
	return d.record, true
}

// entryData is the format private part of an entry. It is implemented by
// *vpk1Data and *wadData only.
type entryData interface {
	format() Format
}

// vpk1Data is the VPK private state of an entry.
type vpk1Data struct {
	fullPath string

	// srcPath is set while the bytes live in an external file added by
	// reference and have not been written into the archive yet.
	srcPath string

	// pending holds bytes added from memory until the next Write.
	pending []byte

	// preload holds the inline bytes from the directory section, when retained.
	preload []byte

	// preloadOffset is the absolute offset of the preload bytes inside the
	// directory file, kept so dropped preload data can be fetched again.
	preloadOffset int64

	record VPK1Record

	dirty   bool
	written bool
}

func (*vpk1Data) format() Format { return FormatVPK1 }

// release drops every buffer owned by the entry.
func (d *vpk1Data) release() {
	d.pending = nil
	d.preload = nil
	d.srcPath = ""
}

// wadBacking selects where a lump's bytes currently live.
type wadBacking int

const (
	// wadInContainer means the bytes are in the WAD file at Entry.Offset.
	wadInContainer wadBacking = iota
	// wadFromPath means the bytes are in an external file not yet copied in.
	wadFromPath
	// wadFromBuffer means the bytes are held in memory.
	wadFromBuffer
)

// wadData is the WAD private state of a lump. Exactly one backing is active.
type wadData struct {
	backing wadBacking
	srcPath string
	buf     []byte
}

func (*wadData) format() Format { return FormatWAD }

func (d *wadData) useSourcePath(path string) {
	d.backing = wadFromPath
	d.srcPath = path
	d.buf = nil
}

func (d *wadData) useBuffer(buf []byte) {
	d.backing = wadFromBuffer
	d.buf = buf
	d.srcPath = ""
}

func (d *wadData) useContainer() {
	d.backing = wadInContainer
	d.buf = nil
	d.srcPath = ""
}
