// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// loadState tracks where an archive is in its read lifecycle.
type loadState int

const (
	stateUnloaded loadState = iota
	stateLoading
	stateLoaded
	stateFailed
)

// VPK1Archive is a Valve VPK version 1 archive set: one directory file plus
// zero or more numbered payload files.
//
// Write regenerates every file of the set from the in-memory entries. The
// files are replaced one after another, so a crash in the middle of Write
// can leave the directory file and the payload files out of step.
type VPK1Archive struct {
	settings VPK1Settings
	logger   *slog.Logger

	state loadState
	err   error

	header vpk1Header
	set    vpk1Set
	hasSet bool

	files []Entry
	index map[string]int

	// Open payload files by archive index, only used with KeepHandles.
	handles map[int]*os.File

	// Number of numbered payload files in the set on disk.
	numArchives int
}

// NewVPK1 returns an empty VPK archive with no files on disk yet.
func NewVPK1(settings VPK1Settings, opts ...Option) *VPK1Archive {
	o := newOptions(opts)
	return &VPK1Archive{
		settings: settings.normalized(),
		logger:   o.logger,
		state:    stateLoaded,
		header: vpk1Header{
			Signature: vpk1Signature,
			Version:   vpk1Version,
		},
		index:   make(map[string]int),
		handles: make(map[int]*os.File),
	}
}

// OpenVPK1 reads the VPK directory file at path, for example "pak01_dir.vpk".
func OpenVPK1(path string, settings VPK1Settings, opts ...Option) (*VPK1Archive, error) {
	a := NewVPK1(settings, opts...)
	if err := a.Read(path); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Read replaces the archive's state with the contents of the directory file
// at path. On failure the archive is left not Good and Err reports why.
func (a *VPK1Archive) Read(path string) error {
	a.Close()
	a.files = nil
	a.index = make(map[string]int)
	a.numArchives = 0
	a.err = nil
	a.state = stateLoading

	file, err := os.Open(path)
	if err != nil {
		return a.fail(fmt.Errorf("open file: %w", err))
	}
	keep := false
	defer func() {
		if !keep {
			file.Close()
		}
	}()

	header, err := readVPK1Header(file)
	if err != nil {
		return a.fail(fmt.Errorf("%w: read header: %v", ErrCorruptDirectory, err))
	}
	if header.Signature != vpk1Signature {
		return a.fail(fmt.Errorf("%w: 0x%08X", ErrInvalidSignature, header.Signature))
	}
	if header.Version != vpk1Version {
		return a.fail(fmt.Errorf("%w: %d", ErrWrongVersion, header.Version))
	}

	tree := make([]byte, header.TreeSize)
	if _, err := io.ReadFull(file, tree); err != nil {
		return a.fail(fmt.Errorf("%w: read tree: %v", ErrCorruptDirectory, err))
	}

	a.header = *header
	a.set = newVPK1Set(path, true)
	a.hasSet = true
	if err := a.parseTree(tree); err != nil {
		return a.fail(err)
	}

	if a.settings.KeepHandles {
		a.handles[vpk1DirArchiveIndex] = file
		keep = true
	}
	a.state = stateLoaded

	a.logger.Info("read vpk", "path", path, "files", len(a.files), "archives", a.numArchives)
	return nil
}

// parseTree walks extension -> directory -> base name, each level ending
// with an empty string, and builds one entry per leaf.
func (a *VPK1Archive) parseTree(tree []byte) error {
	t := &treeReader{buf: tree}
	for {
		ext, err := t.readString()
		if err != nil {
			return err
		}
		if ext == "" {
			break
		}
		for {
			dir, err := t.readString()
			if err != nil {
				return err
			}
			if dir == "" {
				break
			}
			for {
				base, err := t.readString()
				if err != nil {
					return err
				}
				if base == "" {
					break
				}
				parts := pathParts{Dir: decodeComponent(dir), Base: decodeComponent(base), Ext: decodeComponent(ext)}
				if err := a.parseLeaf(t, parts); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *VPK1Archive) parseLeaf(t *treeReader, parts pathParts) error {
	rec, err := t.readRecord()
	if err != nil {
		return fmt.Errorf("%s: %w", parts.Name(), err)
	}
	preloadPos := t.pos
	preload, err := t.readBytes(int(rec.PreloadBytes))
	if err != nil {
		return fmt.Errorf("%s: %w", parts.Name(), err)
	}

	d := &vpk1Data{
		fullPath:      parts.Name(),
		record:        rec,
		preloadOffset: vpk1HeaderSize + int64(preloadPos),
	}
	if a.settings.KeepPreloadData && len(preload) > 0 {
		d.preload = bytes.Clone(preload)
	}
	if rec.EntryLength > 0 && rec.ArchiveIndex != vpk1DirArchiveIndex && int(rec.ArchiveIndex) >= a.numArchives {
		a.numArchives = int(rec.ArchiveIndex) + 1
	}

	a.put(Entry{
		Name:   d.fullPath,
		Dir:    parts.Dir,
		Base:   parts.Base,
		Ext:    parts.Ext,
		Size:   int64(rec.PreloadBytes) + int64(rec.EntryLength),
		Offset: int64(rec.EntryOffset),
		OnDisk: true,
		data:   d,
	})
	return nil
}

func (a *VPK1Archive) fail(err error) error {
	a.state = stateFailed
	a.err = err
	a.files = nil
	a.index = make(map[string]int)
	a.logger.Warn("vpk read failed", "error", err)
	return err
}

// Format reports FormatVPK1.
func (a *VPK1Archive) Format() Format { return FormatVPK1 }

// Settings returns the settings the archive was created with.
func (a *VPK1Archive) Settings() VPK1Settings { return a.settings }

// Path returns the directory file path of the set, or "" for a new archive.
func (a *VPK1Archive) Path() string {
	if !a.hasSet {
		return ""
	}
	return a.set.dirPath
}

// ArchivePath returns the path of numbered payload file index.
func (a *VPK1Archive) ArchivePath(index int) string {
	if !a.hasSet {
		return ""
	}
	return a.set.archivePath(index)
}

// ArchiveCount returns the number of numbered payload files in the set.
func (a *VPK1Archive) ArchiveCount() int { return a.numArchives }

// Files returns a copy of the entries in insertion order.
func (a *VPK1Archive) Files() []Entry {
	out := make([]Entry, len(a.files))
	copy(out, a.files)
	return out
}

// Contains reports whether name is in the archive.
func (a *VPK1Archive) Contains(name string) bool {
	_, ok := a.lookup(name)
	return ok
}

// AddFile adds data under name, replacing any entry with that name.
func (a *VPK1Archive) AddFile(name string, data []byte) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	parts, err := splitName(name)
	if err != nil {
		return err
	}
	d := &vpk1Data{fullPath: parts.Name(), record: newVPK1Record(), dirty: true}
	d.pending = make([]byte, len(data))
	copy(d.pending, data)

	a.put(newVPK1Entry(parts, int64(len(data)), d))
	return nil
}

// AddFileFromPath adds the file at srcPath under name. The file is read when
// its bytes are first needed, at the latest during Write.
func (a *VPK1Archive) AddFileFromPath(name, srcPath string) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	parts, err := splitName(name)
	if err != nil {
		return err
	}
	size, err := statSource(srcPath)
	if err != nil {
		return err
	}
	d := &vpk1Data{fullPath: parts.Name(), srcPath: srcPath, record: newVPK1Record(), dirty: true}

	a.put(newVPK1Entry(parts, size, d))
	return nil
}

func newVPK1Entry(parts pathParts, size int64, d *vpk1Data) Entry {
	return Entry{
		Name:  d.fullPath,
		Dir:   parts.Dir,
		Base:  parts.Base,
		Ext:   parts.Ext,
		Size:  size,
		Dirty: true,
		data:  d,
	}
}

// ReadFile returns the bytes of name.
func (a *VPK1Archive) ReadFile(name string, buf []byte) ([]byte, error) {
	if a.state != stateLoaded {
		return nil, ErrNotLoaded
	}
	i, ok := a.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return a.readEntry(&a.files[i], buf)
}

// readEntry resolves an entry's bytes from its pending buffer, its source
// file, or the archive set on disk.
func (a *VPK1Archive) readEntry(e *Entry, buf []byte) ([]byte, error) {
	d := e.data.(*vpk1Data)
	switch {
	case d.srcPath != "":
		return readSourceFile(d.srcPath, buf, e.Size)
	case !e.OnDisk:
		out := sizedBuffer(buf, e.Size)
		copy(out, d.pending)
		return out, nil
	}

	out := sizedBuffer(buf, e.Size)
	n := int(d.record.PreloadBytes)
	if n > 0 {
		if d.preload != nil {
			copy(out, d.preload)
		} else if err := a.readAt(vpk1DirArchiveIndex, d.preloadOffset, out[:n]); err != nil {
			return nil, fmt.Errorf("read preload of %s: %w", e.Name, err)
		}
	}
	if d.record.EntryLength > 0 {
		if err := a.readAt(int(d.record.ArchiveIndex), a.payloadOffset(d.record), out[n:]); err != nil {
			return nil, fmt.Errorf("read data of %s: %w", e.Name, err)
		}
	}
	return out, nil
}

// payloadOffset returns the absolute offset of a record's payload in its file.
func (a *VPK1Archive) payloadOffset(rec VPK1Record) int64 {
	off := int64(rec.EntryOffset)
	if rec.ArchiveIndex == vpk1DirArchiveIndex {
		off += vpk1HeaderSize + int64(a.header.TreeSize)
	}
	return off
}

func (a *VPK1Archive) readAt(index int, off int64, dst []byte) error {
	file, release, err := a.archiveFile(index)
	if err != nil {
		return err
	}
	defer release()

	if _, err := file.ReadAt(dst, off); err != nil {
		return fmt.Errorf("read %s at %d: %w", filepath.Base(file.Name()), off, err)
	}
	return nil
}

// archiveFile returns a handle to a file of the current set. The release
// func closes it unless handles are kept.
func (a *VPK1Archive) archiveFile(index int) (*os.File, func(), error) {
	if !a.hasSet {
		return nil, nil, fmt.Errorf("archive %d: no archive on disk", index)
	}
	if f, ok := a.handles[index]; ok {
		return f, func() {}, nil
	}
	f, err := os.Open(a.set.archivePath(index))
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}
	if a.settings.KeepHandles {
		a.handles[index] = f
		return f, func() {}, nil
	}
	return f, func() { f.Close() }, nil
}

// ExtractFile writes the bytes of name to target.
func (a *VPK1Archive) ExtractFile(name, target string) error {
	data, err := a.ReadFile(name, nil)
	if err != nil {
		return err
	}
	return writeTarget(target, data)
}

// RemoveFile removes name from the archive.
func (a *VPK1Archive) RemoveFile(name string) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	i, ok := a.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	a.files[i].data.(*vpk1Data).release()
	a.files = append(a.files[:i], a.files[i+1:]...)
	a.reindex(i)
	return nil
}

// Good reports whether the archive loaded successfully.
func (a *VPK1Archive) Good() bool { return a.state != stateFailed }

// Err returns the error that made the last Read fail.
func (a *VPK1Archive) Err() error { return a.err }

// LastErrorString describes the last fatal error.
func (a *VPK1Archive) LastErrorString() string {
	switch {
	case a.err == nil:
		return "No error"
	case errors.Is(a.err, ErrInvalidSignature):
		return "VPK signature invalid"
	case errors.Is(a.err, ErrWrongVersion):
		return "Incorrect VPK version"
	default:
		return a.err.Error()
	}
}

// Close releases every kept file handle. The archive stays usable; later
// reads reopen files as needed.
func (a *VPK1Archive) Close() error {
	var firstErr error
	for index, f := range a.handles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.handles, index)
	}
	return firstErr
}

// DumpInfo writes the header fields and one line per entry to w.
func (a *VPK1Archive) DumpInfo(w io.Writer) error {
	var total int64
	for _, e := range a.files {
		total += e.Size
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "VPK version %d (signature 0x%08X)\n", a.header.Version, a.header.Signature)
	fmt.Fprintf(&buf, "  path:      %s\n", a.Path())
	fmt.Fprintf(&buf, "  status:    %s\n", a.LastErrorString())
	fmt.Fprintf(&buf, "  tree size: %s\n", humanize.IBytes(uint64(a.header.TreeSize)))
	fmt.Fprintf(&buf, "  archives:  %d\n", a.numArchives)
	fmt.Fprintf(&buf, "  files:     %d (%s)\n", len(a.files), humanize.IBytes(uint64(total)))
	for _, e := range a.files {
		d := e.data.(*vpk1Data)
		state := "clean"
		if e.Dirty {
			state = "dirty"
		}
		fmt.Fprintf(&buf, "    %s  %s  archive=%d offset=%d preload=%d crc=0x%08X %s\n",
			e.Name, humanize.IBytes(uint64(e.Size)), d.record.ArchiveIndex, d.record.EntryOffset,
			d.record.PreloadBytes, d.record.CRC, state)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (a *VPK1Archive) checkWritable() error {
	if a.state != stateLoaded {
		return ErrNotLoaded
	}
	if a.settings.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

func (a *VPK1Archive) lookup(name string) (int, bool) {
	i, ok := a.index[normalizeName(name)]
	return i, ok
}

// put appends e, or replaces the entry with the same name in place.
func (a *VPK1Archive) put(e Entry) {
	if i, ok := a.index[e.Name]; ok {
		a.files[i].data.(*vpk1Data).release()
		a.files[i] = e
		return
	}
	a.index[e.Name] = len(a.files)
	a.files = append(a.files, e)
}

// reindex refreshes the name index from position start onwards.
func (a *VPK1Archive) reindex(start int) {
	for name, i := range a.index {
		if i >= start {
			delete(a.index, name)
		}
	}
	for i := start; i < len(a.files); i++ {
		a.index[a.files[i].Name] = i
	}
}
