// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"errors"
	"path/filepath"
	"strings"
)

// pathMax bounds every resolved filesystem path, mirroring the PATH_MAX
// discipline the source applies to every expand_path/expand_fake_path call.
const pathMax = 4096

// Mountpoint pairs a URL prefix with its canonical docroot. The docroot is
// resolved to an absolute, symlink-free path once at startup and never
// changes afterwards.
type Mountpoint struct {
	Prefix  string
	Docroot string
}

// ParseMountSpec splits a "webdav-mount" option value of the form
// "[prefix=]<dir>" into its prefix and directory parts. A bare directory
// (no "=") mounts at the root prefix "".
func ParseMountSpec(spec string) (prefix, dir string) {
	if idx := strings.IndexByte(spec, '='); idx >= 0 {
		return spec[:idx], spec[idx+1:]
	}
	return "", spec
}

// NewMountpoint resolves dir to its canonical absolute form and pairs it
// with prefix. It fails if dir does not exist.
func NewMountpoint(prefix, dir string) (Mountpoint, error) {
	abs, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return Mountpoint{}, err
	}
	abs, err = filepath.Abs(abs)
	if err != nil {
		return Mountpoint{}, err
	}
	return Mountpoint{Prefix: prefix, Docroot: abs}, nil
}

// ResolvedPath is the result of resolving a request path_info against a
// mountpoint's docroot.
type ResolvedPath struct {
	// Abs is the resolved absolute filesystem path.
	Abs string
	// Existing is true when Abs names a path that exists on disk
	// (resolve()); false when only its parent exists and Abs is a
	// not-yet-created leaf (resolve_prospective()).
	Existing bool
}

var errNotFound = errors.New("webdav: path not found")

// ResolvePath implements PathResolver.resolve: it concatenates the
// mountpoint's docroot with uriPath and fully resolves symlinks, returning
// NotFound if any component does not exist.
func ResolvePath(mount Mountpoint, uriPath string) (ResolvedPath, error) {
	candidate := filepath.Join(mount.Docroot, filepath.FromSlash(uriPath))
	abs, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return ResolvedPath{}, errNotFound
	}
	if !withinDocroot(mount.Docroot, abs) {
		// Hardening beyond source fidelity (spec §9): refuse a symlink
		// that resolved outside the mountpoint's canonical docroot.
		return ResolvedPath{}, errNotFound
	}
	return ResolvedPath{Abs: abs, Existing: true}, nil
}

// ResolveProspective implements PathResolver.resolve_prospective: it finds
// the last "/" in uriPath, resolves everything before it (the parent), and
// appends the leaf (kept with its leading "/") without resolving the leaf
// itself, since it may not exist yet (MKCOL, PUT, MOVE destinations).
func ResolveProspective(mount Mountpoint, uriPath string) (ResolvedPath, error) {
	lastSlash := strings.LastIndexByte(uriPath, '/')
	if lastSlash < 0 {
		return ResolvedPath{}, errNotFound
	}
	parentURI, leaf := uriPath[:lastSlash], uriPath[lastSlash:]

	parent, err := ResolvePath(mount, parentURI)
	if err != nil {
		return ResolvedPath{}, errNotFound
	}

	if len(parent.Abs)+len(leaf) >= pathMax {
		return ResolvedPath{}, errNotFound
	}

	return ResolvedPath{Abs: parent.Abs + leaf, Existing: false}, nil
}

// withinDocroot reports whether abs is docroot itself or a descendant of it,
// comparing canonical (already symlink-resolved) path prefixes.
func withinDocroot(docroot, abs string) bool {
	if abs == docroot {
		return true
	}
	return strings.HasPrefix(abs, docroot+string(filepath.Separator))
}
