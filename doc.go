// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package gamepak provides pure Go support for reading, modifying and writing
game asset packages in two formats: Valve VPK version 1 and id Tech WAD.

Both formats implement the [Archive] interface. An archive is read (or
created empty), changed in memory with AddFile, AddFileFromPath and
RemoveFile, and written back with Write, which regenerates the files from
the in-memory entries.

# Features

  - VPK v1 directory trees, preload data and multi-file archive sets
  - Automatic splitting of VPK payload data by a per-file size budget
  - IWAD and PWAD files
  - Files added by path are read only when needed
  - Priority chains of archives (base game plus patches)

# Basic Usage

Creating a VPK set:

	archive := gamepak.NewVPK1(gamepak.DefaultVPK1Settings())
	defer archive.Close()

	if err := archive.AddFileFromPath("materials/brick.vtf", "local/brick.vtf"); err != nil {
		log.Fatal(err)
	}
	if err := archive.Write("out/pak01_dir.vpk"); err != nil {
		log.Fatal(err)
	}

This writes out/pak01_dir.vpk and, for entries too large to be stored as
preload data, out/pak01_000.vpk, out/pak01_001.vpk and so on.

Reading an archive of either format:

	archive, err := gamepak.Open("doom2.wad")
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	data, err := archive.ReadFile("PLAYPAL", nil)
	if errors.Is(err, gamepak.ErrFileNotFound) {
		// ...
	}

# Errors

Errors found while reading a header or directory are fatal: Read returns
them, [Archive.Good] turns false and [Archive.Err] keeps the cause. Errors
returned by single calls, such as [ErrFileNotFound] or [ErrReadOnly], leave
the archive usable.

# Limitations

  - No VPK version 2
  - No compressed payloads
  - Write replaces the files of a VPK set one by one; a crash part way
    through can leave the directory file and payload files inconsistent
  - WAD lump names are at most 8 bytes; longer names are truncated
  - An archive must not be used from several goroutines at once
*/
package gamepak
