// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"time"

	"github.com/fenthope/reco"
)

// LockMode selects how seriously LOCK/UNLOCK and the write methods treat
// the lock table (spec §9 open question: the source's LOCK handler always
// returns 201 without consulting its own lock cache at all).
type LockMode int

const (
	// LockModeSourceFaithful reproduces the source exactly: LOCK always
	// succeeds and mints a token, but no method ever checks for a
	// conflicting lock before writing.
	LockModeSourceFaithful LockMode = iota
	// LockModeEnforced additionally rejects write methods on a resource
	// locked by a different token (If header), per RFC 4918 semantics.
	LockModeEnforced
)

// Config is the full, explicitly-threaded configuration for a Dispatcher.
// Nothing here is read from process-wide global state, so a process can run
// more than one independently-configured WebDAV instance (spec §5 thread-
// and async-safety requirement).
type Config struct {
	// Mountpoints maps URL prefixes to docroots. The longest matching
	// prefix wins; order only decides between identical prefixes, where
	// the first listed wins.
	Mountpoints []Mountpoint

	// LockMode chooses between the two behaviors above. Default
	// (zero value) is LockModeSourceFaithful.
	LockMode LockMode
	// LockCache backs both lock modes; LOCK still records a token even in
	// source-faithful mode so the debug endpoint sees it. UNLOCK removes
	// entries only in LockModeEnforced.
	LockCache *LockCache

	// StrictOverwriteStatus makes PUT return 200 when overwriting an
	// existing resource and 201 only for a genuinely new one. The
	// default (false) keeps the source's unconditional 201.
	StrictOverwriteStatus bool

	// RecursivePropfind makes Depth: infinity (or a missing Depth header)
	// actually recurse through subdirectories; Depth: 1 still lists only
	// immediate children. The default (false) matches the source, which
	// only ever lists immediate children regardless of the requested depth.
	RecursivePropfind bool

	// WalkTimeout bounds how long a RecursivePropfind child listing is
	// allowed to run, immediate children included, on top of whatever
	// cancellation the request's own context already carries.
	// Zero means the walk is only bounded by the request context (client
	// disconnect). Ignored when RecursivePropfind is false, since a
	// single-level listing never runs long enough to need it.
	WalkTimeout time.Duration

	// StrictProppatchShape places each PROPPATCH status as a sibling of
	// <prop> rather than nested inside it. Default (false) keeps the
	// source's nested shape.
	StrictProppatchShape bool

	// Dirlist controls directory-listing HTML rendering for GET on a
	// collection.
	Dirlist DirlistConfig

	// BodyLimit bounds PUT/PROPFIND/PROPPATCH/LOCK request bodies. Zero
	// means unlimited.
	BodyLimit int64

	// Logger receives structured request/error logs. A nil Logger means
	// no logging.
	Logger *reco.Logger
}

// mountpointFor returns the mountpoint whose Prefix is the longest match
// for requestPath, and the path remaining after stripping that prefix.
func (cfg *Config) mountpointFor(requestPath string) (Mountpoint, string, bool) {
	var best *Mountpoint
	for i := range cfg.Mountpoints {
		mp := &cfg.Mountpoints[i]
		if !hasPathPrefix(requestPath, mp.Prefix) {
			continue
		}
		if best == nil || len(mp.Prefix) > len(best.Prefix) {
			best = mp
		}
	}
	if best == nil {
		return Mountpoint{}, "", false
	}
	// rest may legitimately be "": that means the request URI is exactly
	// the mountpoint prefix with nothing after it, which the dispatcher
	// treats as an empty path_info (403), not as "/".
	return *best, requestPath[len(best.Prefix):], true
}

func hasPathPrefix(requestPath, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(requestPath) < len(prefix) {
		return false
	}
	return requestPath[:len(prefix)] == prefix
}
