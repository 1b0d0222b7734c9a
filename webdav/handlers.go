// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/WJQSERVER-STUDIO/go-utils/iox"
	touka "github.com/infinite-iroha/touka"
)

// bodyReader wraps r's body with the configured size limit, the way the
// source bounds every PUT/PROPFIND/PROPPATCH/LOCK read.
func bodyReader(req *methodRequest) io.ReadCloser {
	if req.cfg.BodyLimit <= 0 {
		return req.r.Body
	}
	return touka.NewMaxBytesReader(req.r.Body, req.cfg.BodyLimit)
}

func readBody(req *methodRequest) ([]byte, error) {
	return iox.ReadAll(bodyReader(req))
}

func writeStatus(w http.ResponseWriter, status int) int {
	w.WriteHeader(status)
	return status
}

func writeError(w http.ResponseWriter, status int, msg string) int {
	http.Error(w, msg, status)
	return status
}

// handleOptions answers OPTIONS with the class 1/2 Dav header and the
// method list, per spec §4.7/uwsgi_wevdav_manage_options.
func handleOptions(req *methodRequest) int {
	req.w.Header().Set("Dav", "1, 2")
	req.w.Header().Set("Allow", strings.Join(Methods, ", "))
	return writeStatus(req.w, http.StatusOK)
}

// handleGet serves GET and HEAD: a file streams its bytes, a collection
// renders an HTML listing (spec §4.4/§4.7, uwsgi_wevdav_manage_get).
func handleGet(req *methodRequest) int {
	resolved, err := ResolvePath(req.mount, req.pathInfo)
	if err != nil {
		return writeError(req.w, http.StatusNotFound, "not found")
	}

	info, err := os.Stat(resolved.Abs)
	if err != nil {
		return writeError(req.w, http.StatusNotFound, "not found")
	}

	if info.IsDir() {
		return serveDirectory(req, resolved.Abs)
	}
	return serveFile(req, resolved.Abs, info)
}

func serveDirectory(req *methodRequest, abs string) int {
	entries, err := os.ReadDir(abs)
	if err != nil {
		return writeError(req.w, http.StatusForbidden, "forbidden")
	}

	req.w.Header().Set("Content-Type", "text/html; charset=utf-8")
	req.w.WriteHeader(http.StatusOK)
	if req.r.Method == http.MethodHead {
		return http.StatusOK
	}

	atRoot := req.pathInfo == "/" || req.pathInfo == ""
	RenderDirlist(req.w, req.cfg.Dirlist, req.pathInfo, entries, atRoot)
	return http.StatusOK
}

func serveFile(req *methodRequest, abs string, info os.FileInfo) int {
	f, err := os.Open(abs)
	if err != nil {
		return writeError(req.w, http.StatusForbidden, "forbidden")
	}
	defer f.Close()

	req.w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if ctype := mime.TypeByExtension(filepath.Ext(abs)); ctype != "" {
		req.w.Header().Set("Content-Type", ctype)
	}
	req.w.Header().Set("Last-Modified", formatHTTPDate(info.ModTime()))
	req.w.WriteHeader(http.StatusOK)

	if req.r.Method == http.MethodHead {
		return http.StatusOK
	}
	// 32KiB-chunked copy, same discipline as the source's read/write loop.
	iox.Copy(req.w, f)
	return http.StatusOK
}

// handlePut implements PUT: resolve the target, refusing to overwrite a
// collection, falling back to resolve_prospective for a not-yet-existing
// leaf (uwsgi_wevdav_manage_put).
func handlePut(req *methodRequest) int {
	var abs string
	existed := false

	if resolved, err := ResolvePath(req.mount, req.pathInfo); err == nil {
		abs = resolved.Abs
		existed = true
	} else {
		prospective, err := ResolveProspective(req.mount, req.pathInfo)
		if err != nil {
			return writeError(req.w, http.StatusConflict, "conflict")
		}
		abs = prospective.Abs
	}

	if existed {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return writeError(req.w, http.StatusMethodNotAllowed, "cannot PUT onto a collection")
		}
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return writeError(req.w, http.StatusForbidden, "forbidden")
	}
	body := bodyReader(req)
	_, copyErr := iox.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		return writeError(req.w, http.StatusForbidden, "forbidden")
	}

	status := http.StatusCreated
	if existed && req.cfg.StrictOverwriteStatus {
		status = http.StatusOK
	}
	return writeStatus(req.w, status)
}

// handleDelete implements DELETE: a recursive removal, 200 on success to
// match the source (not the RFC-recommended 204).
func handleDelete(req *methodRequest) int {
	resolved, err := ResolvePath(req.mount, req.pathInfo)
	if err != nil {
		return writeError(req.w, http.StatusNotFound, "not found")
	}
	if err := os.RemoveAll(resolved.Abs); err != nil {
		return writeError(req.w, http.StatusForbidden, "forbidden")
	}
	return writeStatus(req.w, http.StatusOK)
}

// handleMkcol implements MKCOL: a request body makes it unsupported media
// type, an existing target (file or collection alike) is 405, a missing
// parent is 409, success is 201 (uwsgi_wevdav_manage_mkcol).
func handleMkcol(req *methodRequest) int {
	if hasBody(req.r) {
		return writeError(req.w, http.StatusUnsupportedMediaType, "MKCOL does not accept a body")
	}

	pathInfo := strings.TrimSuffix(req.pathInfo, "/")
	if pathInfo == "" {
		pathInfo = "/"
	}

	if _, err := ResolvePath(req.mount, pathInfo); err == nil {
		return writeError(req.w, http.StatusMethodNotAllowed, "already exists")
	}

	prospective, err := ResolveProspective(req.mount, pathInfo)
	if err != nil {
		return writeError(req.w, http.StatusConflict, "parent collection does not exist")
	}
	if err := os.Mkdir(prospective.Abs, 0755); err != nil {
		return writeError(req.w, http.StatusConflict, "parent collection does not exist")
	}
	return writeStatus(req.w, http.StatusCreated)
}

func hasBody(r *http.Request) bool {
	return r.ContentLength > 0
}

func mimeTypeFor(abs string) string {
	return mime.TypeByExtension(filepath.Ext(abs))
}

// destinationPath extracts the URI path of a Destination header, stripping
// scheme://host the way the source computes "skip = scheme_len + 3 +
// host_len"; moveOrCopy then strips the mountpoint prefix to get the
// path_info-equivalent.
func destinationPath(r *http.Request) (string, int) {
	dest := r.Header.Get("Destination")
	if dest == "" {
		return "", http.StatusForbidden
	}
	if idx := strings.Index(dest, "://"); idx >= 0 {
		rest := dest[idx+3:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			dest = rest[slash:]
		} else {
			dest = "/"
		}
	}
	return dest, 0
}

func overwriteAllowed(r *http.Request) bool {
	return !strings.EqualFold(r.Header.Get("Overwrite"), "F")
}

// handleMove implements MOVE: parse Destination/Overwrite, resolve both
// sides, and rename (uwsgi_wevdav_manage_move).
func handleMove(req *methodRequest) int {
	return moveOrCopy(req, os.Rename)
}

// handleCopy implements COPY as a real recursive filesystem copy mirroring
// MOVE's destination resolution, rather than the source's stub (always-
// fail) implementation — spec §9 explicitly recommends this.
func handleCopy(req *methodRequest) int {
	return moveOrCopy(req, copyRecursive)
}

func moveOrCopy(req *methodRequest, transfer func(src, dst string) error) int {
	srcResolved, err := ResolvePath(req.mount, req.pathInfo)
	if err != nil {
		return writeError(req.w, http.StatusNotFound, "not found")
	}

	destPath, errStatus := destinationPath(req.r)
	if errStatus != 0 {
		return writeError(req.w, errStatus, "missing Destination header")
	}
	// Like pathInfo, the destination is resolved relative to this
	// mountpoint, so its prefix is stripped first.
	if !hasPathPrefix(destPath, req.mount.Prefix) {
		return writeError(req.w, http.StatusForbidden, "destination outside this mountpoint")
	}
	destPath = destPath[len(req.mount.Prefix):]

	destExisted := false
	var destAbs string
	if destResolved, err := ResolvePath(req.mount, destPath); err == nil {
		destExisted = true
		destAbs = destResolved.Abs
		if !overwriteAllowed(req.r) {
			return writeError(req.w, http.StatusPreconditionFailed, "destination exists")
		}
		if info, statErr := os.Stat(destAbs); statErr == nil && info.IsDir() {
			if removeErr := os.RemoveAll(destAbs); removeErr != nil {
				return writeError(req.w, http.StatusForbidden, "forbidden")
			}
		}
	} else {
		prospective, err := ResolveProspective(req.mount, destPath)
		if err != nil {
			return writeError(req.w, http.StatusConflict, "destination parent does not exist")
		}
		destAbs = prospective.Abs
	}

	if err := transfer(srcResolved.Abs, destAbs); err != nil {
		return writeError(req.w, http.StatusForbidden, "forbidden")
	}

	status := http.StatusCreated
	if destExisted {
		status = http.StatusNoContent
	}
	return writeStatus(req.w, status)
}

func copyRecursive(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info)
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyRecursive(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	_, copyErr := iox.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// handleLock implements LOCK. In LockModeSourceFaithful, every request
// mints a fresh token unconditionally, matching the source's degenerate
// implementation; LockModeEnforced refuses to overwrite a lock held by a
// different token.
func handleLock(req *methodRequest) int {
	key := LockKey(req.r.Host, req.pathInfo)

	if req.cfg.LockMode == LockModeEnforced {
		ifToken := extractIfToken(req.r.Header.Get("If"))
		if locked, matches := req.cfg.LockCache.Check(key, ifToken); locked && !matches {
			return writeError(req.w, http.StatusLocked, "resource is locked")
		}
	}

	token, err := req.cfg.LockCache.Lock(key)
	if err != nil {
		return writeError(req.w, http.StatusInternalServerError, "failed to mint lock token")
	}

	req.w.Header().Set("Lock-Token", "<opaquelocktoken:"+token+">")
	req.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	return writeStatus(req.w, http.StatusCreated)
}

// handleUnlock implements UNLOCK: a no-op success in source-faithful mode,
// an actual lock-cache release in enforced mode.
func handleUnlock(req *methodRequest) int {
	if req.cfg.LockMode == LockModeEnforced {
		key := LockKey(req.r.Host, req.pathInfo)
		token := extractIfToken(req.r.Header.Get("Lock-Token"))
		req.cfg.LockCache.Unlock(key, token)
	}
	return writeStatus(req.w, http.StatusNoContent)
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPut, http.MethodDelete, "MKCOL", "COPY", "MOVE", "PROPPATCH":
		return true
	default:
		return false
	}
}

// extractIfToken pulls the opaquelocktoken out of an If or Lock-Token
// header value, tolerating the surrounding "<...>" and "(...)" wrappers.
func extractIfToken(header string) string {
	const marker = "opaquelocktoken:"
	idx := strings.Index(header, marker)
	if idx < 0 {
		return ""
	}
	rest := header[idx+len(marker):]
	end := strings.IndexAny(rest, ">) \t")
	if end < 0 {
		return rest
	}
	return rest[:end]
}
