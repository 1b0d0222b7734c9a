// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import "net/http"

// Methods is the full set of HTTP methods a Dispatcher answers to. Mount it
// on a router with this list so unrelated verbs never reach WebDAV code.
var Methods = []string{
	http.MethodOptions, http.MethodGet, http.MethodHead, http.MethodPut,
	http.MethodDelete, "MKCOL", "COPY", "MOVE", "PROPFIND", "PROPPATCH",
	"LOCK", "UNLOCK",
}

// methodRequest bundles everything a method handler needs: the raw
// request/response pair, the resolved mountpoint, and the path_info left
// after stripping the mountpoint's prefix.
type methodRequest struct {
	w        http.ResponseWriter
	r        *http.Request
	cfg      *Config
	mount    Mountpoint
	pathInfo string
}

type methodHandler func(*methodRequest) int

var methodHandlers = map[string]methodHandler{
	http.MethodOptions: handleOptions,
	http.MethodGet:     handleGet,
	http.MethodHead:    handleGet,
	http.MethodPut:     handlePut,
	http.MethodDelete:  handleDelete,
	"MKCOL":            handleMkcol,
	"COPY":             handleCopy,
	"MOVE":             handleMove,
	"PROPFIND":         handlePropfind,
	"PROPPATCH":        handleProppatch,
	"LOCK":             handleLock,
	"UNLOCK":           handleUnlock,
}

// Dispatcher is the top-level http.Handler for one or more mountpoints
// (spec §4.7). It carries no per-request mutable state of its own, so a
// single Dispatcher serves concurrent requests from many goroutines safely.
type Dispatcher struct {
	cfg *Config
}

// NewDispatcher builds a Dispatcher over cfg. cfg is not copied: mutating
// it after handing it to NewDispatcher races with in-flight requests.
func NewDispatcher(cfg *Config) *Dispatcher {
	if cfg.LockCache == nil {
		cfg.LockCache = NewLockCache(nil)
	}
	return &Dispatcher{cfg: cfg}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := d.serve(w, r)
	d.logRequest(r, status)
}

func (d *Dispatcher) serve(w http.ResponseWriter, r *http.Request) int {
	if len(d.cfg.Mountpoints) == 0 {
		http.Error(w, "webdav: no mountpoints configured", http.StatusInternalServerError)
		return http.StatusInternalServerError
	}

	mount, pathInfo, ok := d.cfg.mountpointFor(r.URL.Path)
	if !ok {
		http.Error(w, "webdav: no mountpoint for this path", http.StatusForbidden)
		return http.StatusForbidden
	}
	if pathInfo == "" {
		http.Error(w, "webdav: empty path_info", http.StatusForbidden)
		return http.StatusForbidden
	}

	handler, ok := methodHandlers[r.Method]
	if !ok {
		// The source silently falls through for methods it doesn't
		// recognize, leaving the request for whatever default handling
		// the host server applies. We do the same: report nothing, so
		// the caller's router can try another registered handler.
		return 0
	}

	req := &methodRequest{w: w, r: r, cfg: d.cfg, mount: mount, pathInfo: pathInfo}
	return handler(req)
}

// logRequest is the after_request hook (spec §4.7): one structured log line
// per completed request, when a Logger is configured.
func (d *Dispatcher) logRequest(r *http.Request, status int) {
	if d.cfg.Logger == nil || status == 0 {
		return
	}
	if status >= 500 {
		d.cfg.Logger.Errorf("webdav %s %s -> %d", r.Method, r.URL.Path, status)
		return
	}
	d.cfg.Logger.Infof("webdav %s %s -> %d", r.Method, r.URL.Path, status)
}
