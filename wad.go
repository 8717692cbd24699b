// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// WADArchive is an id Tech WAD file: a flat list of named lumps.
//
// Lump names are stored in 8 bytes. Longer names given to AddFile or
// AddFileFromPath are cut to their first 8 bytes, and the cut name is the
// lump's name from then on; adding "TEXTURE1X" replaces an existing
// "TEXTURE1". Lumps read from disk may repeat a name (map lumps such as
// THINGS appear once per map); lookups act on the first match.
type WADArchive struct {
	settings WADSettings
	logger   *slog.Logger

	state loadState
	err   error

	header wadHeader
	path   string
	files  []Entry

	iwad bool
	pwad bool

	// Kept handle to the WAD at path, only used with KeepFileHandles.
	file *os.File
}

// NewWAD returns an empty PWAD.
func NewWAD(settings WADSettings, opts ...Option) *WADArchive {
	o := newOptions(opts)
	return &WADArchive{
		settings: settings,
		logger:   o.logger,
		state:    stateLoaded,
		header:   wadHeader{Magic: pwadMagic, DirOffset: wadHeaderSize},
		pwad:     true,
	}
}

// OpenWAD reads the WAD file at path.
func OpenWAD(path string, settings WADSettings, opts ...Option) (*WADArchive, error) {
	a := NewWAD(settings, opts...)
	if err := a.Read(path); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Read replaces the archive's state with the contents of the WAD at path.
// On failure the archive is left not Good and Err reports why.
func (a *WADArchive) Read(path string) error {
	a.Close()
	a.files = nil
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

	info, err := file.Stat()
	if err != nil {
		return a.fail(fmt.Errorf("stat file: %w", err))
	}
	size := info.Size()

	header, err := readWADHeader(file)
	if err != nil {
		return a.fail(fmt.Errorf("%w: read header: %v", ErrCorruptDirectory, err))
	}
	switch header.Magic {
	case iwadMagic:
		a.SetIWAD(true)
	case pwadMagic:
		a.SetPWAD(true)
	default:
		return a.fail(fmt.Errorf("%w: %q", ErrInvalidSignature, header.Magic[:]))
	}
	if header.Entries < 0 || header.DirOffset < 0 {
		return a.fail(fmt.Errorf("%w: %d entries at offset %d", ErrCorruptDirectory, header.Entries, header.DirOffset))
	}
	if int64(header.DirOffset)+int64(header.Entries)*wadDirectorySize > size {
		return a.fail(fmt.Errorf("%w: directory past end of file", ErrCorruptDirectory))
	}

	if _, err := file.Seek(int64(header.DirOffset), io.SeekStart); err != nil {
		return a.fail(fmt.Errorf("seek to directory: %w", err))
	}
	dir, err := readWADDirectory(bufio.NewReader(file), int(header.Entries))
	if err != nil {
		return a.fail(fmt.Errorf("%w: read directory: %v", ErrCorruptDirectory, err))
	}

	files := make([]Entry, 0, len(dir))
	for i, d := range dir {
		name := lumpName(d.Name)
		if d.Offset < 0 || d.Size < 0 || int64(d.Offset)+int64(d.Size) > size {
			return a.fail(fmt.Errorf("%w: lump %d (%s) outside file", ErrCorruptDirectory, i, name))
		}
		files = append(files, Entry{
			Name:   name,
			Base:   name,
			Size:   int64(d.Size),
			Offset: int64(d.Offset),
			OnDisk: true,
			data:   &wadData{backing: wadInContainer},
		})
	}

	a.header = *header
	a.path = path
	a.files = files
	if a.settings.KeepFileHandles {
		a.file = file
		keep = true
	}
	a.state = stateLoaded

	a.logger.Info("read wad", "path", path, "kind", string(header.Magic[:]), "lumps", len(files))
	return nil
}

func (a *WADArchive) fail(err error) error {
	a.state = stateFailed
	a.err = err
	a.files = nil
	a.logger.Warn("wad read failed", "error", err)
	return err
}

// Format reports FormatWAD.
func (a *WADArchive) Format() Format { return FormatWAD }

// Path returns the file the archive was read from or last written to.
func (a *WADArchive) Path() string { return a.path }

// IsIWAD reports whether the archive is a primary (IWAD) file.
func (a *WADArchive) IsIWAD() bool { return a.iwad }

// IsPWAD reports whether the archive is a patch (PWAD) file.
func (a *WADArchive) IsPWAD() bool { return a.pwad }

// SetIWAD marks the archive as an IWAD when b is true, as a PWAD otherwise.
func (a *WADArchive) SetIWAD(b bool) {
	a.iwad = b
	a.pwad = !b
}

// SetPWAD marks the archive as a PWAD when b is true, as an IWAD otherwise.
func (a *WADArchive) SetPWAD(b bool) {
	a.pwad = b
	a.iwad = !b
}

// Files returns a copy of the lumps in directory order.
func (a *WADArchive) Files() []Entry {
	out := make([]Entry, len(a.files))
	copy(out, a.files)
	return out
}

// Contains reports whether a lump called name exists. Names longer than 8
// bytes are compared after truncation.
func (a *WADArchive) Contains(name string) bool {
	_, ok := a.lookup(name)
	return ok
}

// AddFile adds data as lump name, replacing the first lump with that name.
func (a *WADArchive) AddFile(name string, data []byte) error {
	if a.state != stateLoaded {
		return ErrNotLoaded
	}
	name, err := a.checkName(name)
	if err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	d := &wadData{}
	d.useBuffer(buf)
	a.put(Entry{Name: name, Base: name, Size: int64(len(buf)), Dirty: true, data: d})
	return nil
}

// AddFileFromPath adds the file at srcPath as lump name. The file is read
// when its bytes are first needed, at the latest during Write.
func (a *WADArchive) AddFileFromPath(name, srcPath string) error {
	if a.state != stateLoaded {
		return ErrNotLoaded
	}
	name, err := a.checkName(name)
	if err != nil {
		return err
	}
	size, err := statSource(srcPath)
	if err != nil {
		return err
	}
	if size > math.MaxInt32 {
		return fmt.Errorf("%s: %d bytes exceeds the WAD lump limit", srcPath, size)
	}

	d := &wadData{}
	d.useSourcePath(srcPath)
	a.put(Entry{Name: name, Base: name, Size: size, Dirty: true, data: d})
	return nil
}

// checkName validates a lump name and applies the 8 byte truncation.
func (a *WADArchive) checkName(name string) (string, error) {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	short, cut := truncateLumpName(name)
	if cut {
		a.logger.Warn("wad lump name truncated", "name", name, "stored", short)
	}
	return short, nil
}

func (a *WADArchive) put(e Entry) {
	if i, ok := a.lookup(e.Name); ok {
		a.files[i] = e
		return
	}
	a.files = append(a.files, e)
}

// ReadFile returns the bytes of lump name.
func (a *WADArchive) ReadFile(name string, buf []byte) ([]byte, error) {
	if a.state != stateLoaded {
		return nil, ErrNotLoaded
	}
	i, ok := a.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return a.readLump(&a.files[i], buf)
}

func (a *WADArchive) readLump(e *Entry, buf []byte) ([]byte, error) {
	d := e.data.(*wadData)
	switch d.backing {
	case wadFromPath:
		return readSourceFile(d.srcPath, buf, e.Size)
	case wadFromBuffer:
		out := sizedBuffer(buf, e.Size)
		copy(out, d.buf)
		return out, nil
	}

	file, release, err := a.container()
	if err != nil {
		return nil, err
	}
	defer release()

	out := sizedBuffer(buf, e.Size)
	if _, err := file.ReadAt(out, e.Offset); err != nil {
		return nil, fmt.Errorf("read lump %s: %w", e.Name, err)
	}
	return out, nil
}

// openLump returns a reader over a lump's bytes for streaming into a new file.
func (a *WADArchive) openLump(e *Entry) (io.Reader, func(), error) {
	d := e.data.(*wadData)
	switch d.backing {
	case wadFromPath:
		file, err := os.Open(d.srcPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open source %s: %w", d.srcPath, err)
		}
		if err := checkSourceSize(file, d.srcPath, e.Size); err != nil {
			file.Close()
			return nil, nil, err
		}
		return file, func() { file.Close() }, nil
	case wadFromBuffer:
		return bytes.NewReader(d.buf), func() {}, nil
	}

	file, release, err := a.container()
	if err != nil {
		return nil, nil, err
	}
	return io.NewSectionReader(file, e.Offset, e.Size), release, nil
}

// container returns a handle to the WAD on disk. The release func closes it
// unless the handle is kept.
func (a *WADArchive) container() (*os.File, func(), error) {
	if a.file != nil {
		return a.file, func() {}, nil
	}
	if a.path == "" {
		return nil, nil, errors.New("no wad on disk")
	}
	file, err := os.Open(a.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open wad: %w", err)
	}
	if a.settings.KeepFileHandles {
		a.file = file
		return file, func() {}, nil
	}
	return file, func() { file.Close() }, nil
}

// ExtractFile writes the bytes of lump name to target.
func (a *WADArchive) ExtractFile(name, target string) error {
	data, err := a.ReadFile(name, nil)
	if err != nil {
		return err
	}
	return writeTarget(target, data)
}

// RemoveFile removes the first lump called name.
func (a *WADArchive) RemoveFile(name string) error {
	if a.state != stateLoaded {
		return ErrNotLoaded
	}
	i, ok := a.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	a.files = append(a.files[:i], a.files[i+1:]...)
	return nil
}

// calcOffsets lays the lumps out back to back after the header and returns
// the directory to store. Offsets are always recomputed from the sizes,
// never taken from the entries.
func (a *WADArchive) calcOffsets() (wadHeader, []wadDirEntry, error) {
	dir := make([]wadDirEntry, len(a.files))
	offset := int64(wadHeaderSize)
	for i, e := range a.files {
		if offset+e.Size > math.MaxInt32 {
			return wadHeader{}, nil, fmt.Errorf("wad larger than 2 GiB at lump %s", e.Name)
		}
		dir[i] = wadDirEntry{
			Offset: int32(offset),
			Size:   int32(e.Size),
			Name:   encodeLumpName(e.Name),
		}
		offset += e.Size
	}

	header := wadHeader{
		Magic:     pwadMagic,
		Entries:   int32(len(dir)),
		DirOffset: int32(offset),
	}
	if a.iwad {
		header.Magic = iwadMagic
	}
	return header, dir, nil
}

// Write serializes the WAD to filename, or to the file it was read from or
// last written to when filename is empty. The file is built next to the
// target and renamed into place.
func (a *WADArchive) Write(filename string) error {
	if a.state != stateLoaded {
		return ErrNotLoaded
	}
	target := filename
	if target == "" {
		target = a.path
	}
	if target == "" {
		return ErrNoFilename
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	header, dir, err := a.calcOffsets()
	if err != nil {
		return err
	}

	tempPath, err := a.writeTemp(filepath.Dir(target), &header, dir)
	if err != nil {
		if tempPath != "" {
			os.Remove(tempPath)
		}
		return err
	}

	// The kept handle points at the file about to be replaced.
	a.Close()
	if err := replaceFile(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("save wad: %w", err)
	}

	for i := range a.files {
		e := &a.files[i]
		e.data.(*wadData).useContainer()
		e.Offset = int64(dir[i].Offset)
		e.OnDisk = true
		e.Dirty = false
	}
	a.header = header
	a.path = target

	a.logger.Info("wrote wad", "path", target, "kind", string(header.Magic[:]), "lumps", len(dir))
	return nil
}

func (a *WADArchive) writeTemp(dir string, header *wadHeader, entries []wadDirEntry) (string, error) {
	file, err := os.CreateTemp(dir, "wad_*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := writeWADHeader(w, header); err != nil {
		return file.Name(), fmt.Errorf("write header: %w", err)
	}
	for i := range a.files {
		e := &a.files[i]
		r, release, err := a.openLump(e)
		if err != nil {
			return file.Name(), fmt.Errorf("open lump %s: %w", e.Name, err)
		}
		_, err = io.CopyN(w, r, e.Size)
		release()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return file.Name(), fmt.Errorf("copy lump %s: %w", e.Name, err)
		}
	}
	if err := writeWADDirectory(w, entries); err != nil {
		return file.Name(), fmt.Errorf("write directory: %w", err)
	}
	if err := w.Flush(); err != nil {
		return file.Name(), fmt.Errorf("flush: %w", err)
	}
	return file.Name(), file.Close()
}

// Good reports whether the archive loaded successfully.
func (a *WADArchive) Good() bool { return a.state != stateFailed }

// Err returns the error that made the last Read fail.
func (a *WADArchive) Err() error { return a.err }

// LastErrorString describes the last fatal error.
func (a *WADArchive) LastErrorString() string {
	switch {
	case a.err == nil:
		return "No error"
	case errors.Is(a.err, ErrInvalidSignature):
		return "WAD signature invalid"
	default:
		return a.err.Error()
	}
}

// Close releases the kept file handle, if any.
func (a *WADArchive) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// DumpInfo writes the header fields and one line per lump to w.
func (a *WADArchive) DumpInfo(w io.Writer) error {
	var total int64
	for _, e := range a.files {
		total += e.Size
	}
	kind := "PWAD"
	if a.iwad {
		kind = "IWAD"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", kind)
	fmt.Fprintf(&buf, "  path:       %s\n", a.path)
	fmt.Fprintf(&buf, "  status:     %s\n", a.LastErrorString())
	fmt.Fprintf(&buf, "  dir offset: %d\n", a.header.DirOffset)
	fmt.Fprintf(&buf, "  lumps:      %d (%s)\n", len(a.files), humanize.IBytes(uint64(total)))
	for _, e := range a.files {
		fmt.Fprintf(&buf, "    %-8s  offset=%d size=%d\n", e.Name, e.Offset, e.Size)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// lookup finds the first lump called name, truncating long names the same
// way AddFile does.
func (a *WADArchive) lookup(name string) (int, bool) {
	name, _ = truncateLumpName(name)
	for i := range a.files {
		if a.files[i].Name == name {
			return i, true
		}
	}
	return -1, false
}
