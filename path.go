// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"fmt"
	"strings"
)

// pathParts is a logical archive path decomposed the way the VPK directory
// tree stores it.
type pathParts struct {
	Dir  string
	Base string
	Ext  string
}

// Name joins the parts back into a logical path.
func (p pathParts) Name() string {
	var sb strings.Builder
	if p.Dir != "" {
		sb.WriteString(p.Dir)
		sb.WriteByte('/')
	}
	sb.WriteString(p.Base)
	if p.Ext != "" {
		sb.WriteByte('.')
		sb.WriteString(p.Ext)
	}
	return sb.String()
}

// normalizeName converts backslashes to forward slashes, strips leading
// slashes and collapses repeated separators. Case is preserved.
func normalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	for strings.Contains(name, "//") {
		name = strings.ReplaceAll(name, "//", "/")
	}
	return name
}

// splitName decomposes a logical path into directory, base name and
// extension. The extension is everything after the last dot of the final
// path element.
func splitName(name string) (pathParts, error) {
	name = normalizeName(name)
	if name == "" || strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return pathParts{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return pathParts{}, fmt.Errorf("%w: %q contains NUL", ErrInvalidName, name)
	}

	var p pathParts
	file := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		p.Dir = name[:i]
		file = name[i+1:]
	}
	p.Base = file
	if i := strings.LastIndexByte(file, '.'); i >= 0 {
		p.Base = file[:i]
		p.Ext = file[i+1:]
	}

	// A single space is how the tree encodes an empty component.
	if p.Dir == vpk1EmptyComponent || p.Base == vpk1EmptyComponent || p.Ext == vpk1EmptyComponent {
		return pathParts{}, fmt.Errorf("%w: %q has a blank component", ErrInvalidName, name)
	}
	return p, nil
}
