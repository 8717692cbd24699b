// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"os"
	"path/filepath"
	"testing"
)

// benchChain writes n archives, alternating VPK and WAD, each holding the
// same file names, and opens them as a chain.
func benchChain(b *testing.B, n, files int) *Chain {
	b.Helper()
	tmpDir := b.TempDir()

	var archivePaths []string
	for i := 0; i < n; i++ {
		var archive Archive
		var archivePath string
		if i%2 == 0 {
			archivePath = filepath.Join(tmpDir, "archive_"+string(rune('0'+i))+"_dir.vpk")
			archive = NewVPK1(DefaultVPK1Settings())
		} else {
			archivePath = filepath.Join(tmpDir, "archive_"+string(rune('0'+i))+".wad")
			archive = NewWAD(DefaultWADSettings())
		}

		for j := 0; j < files; j++ {
			name := "FILE_" + string(rune('A'+j))
			if archive.Format() == FormatVPK1 {
				name = "data/" + name + ".txt"
			}
			content := []byte("test content " + string(rune('0'+i)) + string(rune('a'+j)))
			if err := archive.AddFile(name, content); err != nil {
				b.Fatal(err)
			}
		}

		if err := archive.Write(archivePath); err != nil {
			b.Fatal(err)
		}
		if err := archive.Close(); err != nil {
			b.Fatal(err)
		}
		archivePaths = append(archivePaths, archivePath)
	}

	chain, err := OpenChain(archivePaths)
	if err != nil {
		b.Fatal(err)
	}
	return chain
}

// BenchmarkChainLookup benchmarks name lookup through the cache
func BenchmarkChainLookup(b *testing.B) {
	chain := benchChain(b, 5, 20)
	defer chain.Close()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		chain.Contains("data/FILE_A.txt")
		chain.Contains("FILE_J")
		chain.Contains("data/FILE_T.txt")
		chain.Contains("data/NonExistent.txt")
	}
}

// BenchmarkChainLinearLookup benchmarks name lookup with the linear fallback
func BenchmarkChainLinearLookup(b *testing.B) {
	chain := benchChain(b, 5, 20)
	defer chain.Close()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		chain.resolveLinear("data/FILE_A.txt")
		chain.resolveLinear("FILE_J")
		chain.resolveLinear("data/FILE_T.txt")
		chain.resolveLinear("data/NonExistent.txt")
	}
}

// BenchmarkChainExtract benchmarks extraction of the highest priority copy
func BenchmarkChainExtract(b *testing.B) {
	chain := benchChain(b, 3, 10)
	defer chain.Close()

	outputDir := filepath.Join(b.TempDir(), "output")
	os.MkdirAll(outputDir, 0755)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		destPath := filepath.Join(outputDir, "extracted.txt")
		chain.ExtractFile("data/FILE_A.txt", destPath)
		os.Remove(destPath)
	}
}
