// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"hash"
	"hash/crc32"
)

// checksum returns the CRC-32 (IEEE) that VPK directory records carry for
// an entry's complete data, preload and payload together.
func checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// newChecksum returns a running CRC-32 for streamed payloads.
func newChecksum() hash.Hash32 {
	return crc32.NewIEEE()
}
