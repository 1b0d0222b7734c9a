// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"html"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// DirlistConfig controls how DirectoryLister renders a collection, mirroring
// the source's handful of dirlist options (webdav-css, webdav-javascript,
// webdav-class-directory, webdav-div).
type DirlistConfig struct {
	// CSS, if non-empty, is emitted as <link rel="stylesheet" href="...">.
	CSS string
	// Scripts is emitted as one <script src="..."></script> per entry.
	Scripts []string
	// DivID wraps the listing in <div id="...">; a bare <div> with no id
	// attribute when empty (webdav-div unset).
	DivID string
	// DirClass is the class attribute on a directory entry's <li>; default
	// "directory" when empty (webdav-class-directory unset). Plain file
	// entries never get a class attribute, matching the source.
	DirClass string
}

func (c DirlistConfig) dirClass() string {
	if c.DirClass == "" {
		return "directory"
	}
	return c.DirClass
}

// dirEntry is one row of a rendered directory listing.
type dirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// RenderDirlist writes an HTML directory listing for entries to w, in the
// style of the source's scandir-based listing: a ".." entry first (unless
// atRoot), then every remaining entry in natural (version) sort order,
// skipping dotfiles.
func RenderDirlist(w io.Writer, cfg DirlistConfig, requestPath string, entries []os.DirEntry, atRoot bool) error {
	rows := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rows = append(rows, dirEntry{Name: name, IsDir: e.IsDir(), Size: info.Size()})
	}
	sort.Slice(rows, func(i, j int) bool { return naturalLess(rows[i].Name, rows[j].Name) })

	b := &strings.Builder{}
	b.WriteString("<html><head><title>")
	b.WriteString(html.EscapeString(requestPath))
	b.WriteString("</title>")
	if cfg.CSS != "" {
		b.WriteString(`<link rel="stylesheet" href="`)
		b.WriteString(html.EscapeString(cfg.CSS))
		b.WriteString(`">`)
	}
	for _, script := range cfg.Scripts {
		b.WriteString(`<script src="`)
		b.WriteString(html.EscapeString(script))
		b.WriteString(`"></script>`)
	}
	b.WriteString("</head><body>")
	if cfg.DivID != "" {
		b.WriteString(`<div id="`)
		b.WriteString(html.EscapeString(cfg.DivID))
		b.WriteString(`">`)
	} else {
		b.WriteString("<div>")
	}
	b.WriteString("<ul>")

	if !atRoot {
		writeDirlistItem(b, cfg, "..", true, 0)
	}
	for _, row := range rows {
		writeDirlistItem(b, cfg, row.Name, row.IsDir, row.Size)
	}

	b.WriteString("</ul></div></body></html>")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeDirlistItem(b *strings.Builder, cfg DirlistConfig, name string, isDir bool, size int64) {
	href := name
	if isDir {
		href += "/"
	}
	if isDir {
		b.WriteString(`<li class="`)
		b.WriteString(html.EscapeString(cfg.dirClass()))
		b.WriteString(`"><a href="`)
	} else {
		b.WriteString(`<li><a href="`)
	}
	b.WriteString(html.EscapeString(href))
	b.WriteString(`">`)
	b.WriteString(html.EscapeString(name))
	if isDir {
		b.WriteString("/")
	}
	b.WriteString("</a>")
	if !isDir {
		b.WriteString(" (")
		b.WriteString(strconv.FormatInt(size, 10))
		b.WriteString(" bytes)")
	}
	b.WriteString("</li>")
}

// naturalLess compares two names the way glibc's versionsort(3) does: runs
// of digits compare numerically, everything else compares byte-wise. This
// keeps "file2" before "file10", matching the source's scandir comparator.
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			starti, startj := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			numA := strings.TrimLeft(a[starti:i], "0")
			numB := strings.TrimLeft(b[startj:j], "0")
			if len(numA) != len(numB) {
				return len(numA) < len(numB)
			}
			if numA != numB {
				return numA < numB
			}
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(a)-i < len(b)-j
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
