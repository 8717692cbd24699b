// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// vpk1Placement is where Write puts one entry.
type vpk1Placement struct {
	entry      *Entry
	rec        VPK1Record
	preload    []byte
	preloadPos int // Offset of the preload bytes within the tree
}

// Write regenerates the directory file and every numbered payload file from
// the current entries. With an empty filename the set the archive was read
// from or last written to is replaced; otherwise filename names the new set,
// either as "<base>_dir.<ext>" or "<base>.<ext>".
//
// Each file is built in a temp file next to its target and then renamed
// into place. The renames are not atomic as a group.
func (a *VPK1Archive) Write(filename string) error {
	if err := a.checkWritable(); err != nil {
		return err
	}

	var set vpk1Set
	switch {
	case filename != "":
		set = newVPK1Set(filename, false)
	case a.hasSet:
		set = a.set
	default:
		return ErrNoFilename
	}

	dir := filepath.Dir(set.dirPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	placements, archives, err := a.planLayout()
	if err != nil {
		return err
	}

	var temps []string
	committed := false
	defer func() {
		if !committed {
			for _, t := range temps {
				os.Remove(t)
			}
		}
	}()

	// Write payload files
	for index, group := range archives {
		tempPath, err := a.writePayloadFile(dir, group)
		if tempPath != "" {
			temps = append(temps, tempPath)
		}
		if err != nil {
			return fmt.Errorf("write archive %d: %w", index, err)
		}
		a.logger.Debug("vpk payload file built", "index", index, "files", len(group))
	}

	// Read preload data
	for _, p := range placements {
		if p.rec.ArchiveIndex != vpk1DirArchiveIndex {
			continue
		}
		data, err := a.readEntry(p.entry, nil)
		if err != nil {
			return fmt.Errorf("read %s: %w", p.entry.Name, err)
		}
		p.preload = data
		p.rec.CRC = checksum(data)
	}

	tree := buildTree(placements)
	if int64(tree.Len()) > math.MaxUint32 {
		return fmt.Errorf("directory tree too large: %d bytes", tree.Len())
	}
	header := vpk1Header{
		Signature: vpk1Signature,
		Version:   vpk1Version,
		TreeSize:  uint32(tree.Len()),
	}

	dirTemp, err := writeDirectoryFile(dir, &header, tree.Bytes())
	if dirTemp != "" {
		temps = append(temps, dirTemp)
	}
	if err != nil {
		return fmt.Errorf("write directory: %w", err)
	}

	// Swap the new files in. Kept handles point at the old files.
	a.Close()
	for index := range archives {
		if err := replaceFile(temps[index], set.archivePath(index)); err != nil {
			return fmt.Errorf("save archive %d: %w", index, err)
		}
	}
	if err := replaceFile(dirTemp, set.dirPath); err != nil {
		return fmt.Errorf("save directory: %w", err)
	}
	committed = true

	if a.hasSet && a.set.prefix == set.prefix && a.set.ext == set.ext {
		for index := len(archives); index < a.numArchives; index++ {
			stale := set.archivePath(index)
			if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
				a.logger.Warn("remove stale vpk archive", "path", stale, "error", err)
			}
		}
	}

	a.commit(set, header, placements, len(archives))
	a.logger.Info("wrote vpk", "path", set.dirPath, "files", len(a.files), "archives", len(archives))
	return nil
}

// planLayout orders the entries by extension, directory and base name and
// decides where each one goes. Small entries become preload data in the
// directory file. The rest are packed into numbered payload files in order,
// starting a new file whenever the next entry would push a non-empty file
// past the size budget.
func (a *VPK1Archive) planLayout() ([]*vpk1Placement, [][]*vpk1Placement, error) {
	placements := make([]*vpk1Placement, len(a.files))
	for i := range a.files {
		placements[i] = &vpk1Placement{entry: &a.files[i], rec: newVPK1Record()}
	}
	sort.Slice(placements, func(i, j int) bool {
		x, y := placements[i].entry, placements[j].entry
		if x.Ext != y.Ext {
			return x.Ext < y.Ext
		}
		if x.Dir != y.Dir {
			return x.Dir < y.Dir
		}
		return x.Base < y.Base
	})

	var archives [][]*vpk1Placement
	var used int64
	for _, p := range placements {
		e := p.entry
		e.data.(*vpk1Data).written = false
		if e.Size > math.MaxUint32 {
			return nil, nil, fmt.Errorf("%s: %d bytes exceeds the 4 GiB entry limit", e.Name, e.Size)
		}

		if e.Size == 0 || (a.settings.KeepPreloadData && e.Size <= a.settings.MaxPreloadSize) {
			p.rec.ArchiveIndex = vpk1DirArchiveIndex
			p.rec.PreloadBytes = uint16(e.Size)
			continue
		}

		if len(archives) == 0 || (used > 0 && used+e.Size > a.settings.SizeBudget) {
			if len(archives) == vpk1DirArchiveIndex {
				return nil, nil, fmt.Errorf("too many archive files for size budget %d", a.settings.SizeBudget)
			}
			archives = append(archives, nil)
			used = 0
		}
		index := len(archives) - 1
		p.rec.ArchiveIndex = uint16(index)
		p.rec.EntryOffset = uint32(used)
		p.rec.EntryLength = uint32(e.Size)
		archives[index] = append(archives[index], p)
		used += e.Size
	}
	return placements, archives, nil
}

// writePayloadFile streams every entry of one numbered file into a temp
// file, computing each entry's CRC on the way.
func (a *VPK1Archive) writePayloadFile(dir string, group []*vpk1Placement) (string, error) {
	file, err := os.CreateTemp(dir, "vpk_*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, p := range group {
		r, release, err := a.openEntry(p.entry)
		if err != nil {
			return file.Name(), fmt.Errorf("open %s: %w", p.entry.Name, err)
		}
		crc := newChecksum()
		_, err = io.CopyN(io.MultiWriter(w, crc), r, int64(p.rec.EntryLength))
		release()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return file.Name(), fmt.Errorf("copy %s: %w", p.entry.Name, err)
		}
		p.rec.CRC = crc.Sum32()
	}
	if err := w.Flush(); err != nil {
		return file.Name(), fmt.Errorf("flush: %w", err)
	}
	return file.Name(), file.Close()
}

// openEntry returns a reader over an entry's complete data.
func (a *VPK1Archive) openEntry(e *Entry) (io.Reader, func(), error) {
	d := e.data.(*vpk1Data)
	switch {
	case d.srcPath != "":
		file, err := os.Open(d.srcPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open source %s: %w", d.srcPath, err)
		}
		if err := checkSourceSize(file, d.srcPath, e.Size); err != nil {
			file.Close()
			return nil, nil, err
		}
		return file, func() { file.Close() }, nil
	case !e.OnDisk:
		return bytes.NewReader(d.pending), func() {}, nil
	}

	var readers []io.Reader
	var releases []func()
	release := func() {
		for _, r := range releases {
			r()
		}
	}

	if n := int64(d.record.PreloadBytes); n > 0 {
		if d.preload != nil {
			readers = append(readers, bytes.NewReader(d.preload))
		} else {
			file, rel, err := a.archiveFile(vpk1DirArchiveIndex)
			if err != nil {
				release()
				return nil, nil, err
			}
			releases = append(releases, rel)
			readers = append(readers, io.NewSectionReader(file, d.preloadOffset, n))
		}
	}
	if d.record.EntryLength > 0 {
		file, rel, err := a.archiveFile(int(d.record.ArchiveIndex))
		if err != nil {
			release()
			return nil, nil, err
		}
		releases = append(releases, rel)
		readers = append(readers, io.NewSectionReader(file, a.payloadOffset(d.record), int64(d.record.EntryLength)))
	}
	return io.MultiReader(readers...), release, nil
}

// buildTree serializes the placements, already sorted by extension,
// directory and base name, into the three level directory tree.
func buildTree(placements []*vpk1Placement) *treeWriter {
	t := &treeWriter{}
	for i := 0; i < len(placements); {
		ext := placements[i].entry.Ext
		t.writeString(ext)
		for i < len(placements) && placements[i].entry.Ext == ext {
			dir := placements[i].entry.Dir
			t.writeString(dir)
			for i < len(placements) && placements[i].entry.Ext == ext && placements[i].entry.Dir == dir {
				p := placements[i]
				t.writeString(p.entry.Base)
				t.writeRecord(p.rec)
				p.preloadPos = t.Len()
				t.Write(p.preload)
				i++
			}
			t.writeEnd()
		}
		t.writeEnd()
	}
	t.writeEnd()
	return t
}

func writeDirectoryFile(dir string, header *vpk1Header, tree []byte) (string, error) {
	file, err := os.CreateTemp(dir, "vpk_*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	if err := writeVPK1Header(file, header); err != nil {
		return file.Name(), fmt.Errorf("write header: %w", err)
	}
	if _, err := file.Write(tree); err != nil {
		return file.Name(), fmt.Errorf("write tree: %w", err)
	}
	return file.Name(), file.Close()
}

// commit makes the in-memory state describe the set that was just written.
func (a *VPK1Archive) commit(set vpk1Set, header vpk1Header, placements []*vpk1Placement, numArchives int) {
	a.set = set
	a.hasSet = true
	a.header = header
	a.numArchives = numArchives

	for _, p := range placements {
		e := p.entry
		d := e.data.(*vpk1Data)
		d.release()
		d.record = p.rec
		if len(p.preload) > 0 {
			d.preload = p.preload
		}
		d.preloadOffset = vpk1HeaderSize + int64(p.preloadPos)
		d.dirty = false
		d.written = true

		e.Offset = int64(p.rec.EntryOffset)
		e.OnDisk = true
		e.Dirty = false
	}
}
