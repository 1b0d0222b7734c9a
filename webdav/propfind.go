// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	touka "github.com/infinite-iroha/touka"
)

// dropConnection answers a malformed request body the way the source does:
// it never writes a response at all, simply abandoning the connection. When
// the underlying ResponseWriter can be hijacked (respw.go's implementation
// supports this generically), we close the raw connection; otherwise we
// degrade to a plain 400 so the client isn't left hanging indefinitely.
func dropConnection(w http.ResponseWriter) int {
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			conn.Close()
			return 0
		}
	}
	w.WriteHeader(http.StatusBadRequest)
	return http.StatusBadRequest
}

// handlePropfind implements PROPFIND (uwsgi_wevdav_manage_propfind): Depth
// 0 answers only the requested resource, any other Depth (including a
// missing header, which defaults to "infinity") also lists the immediate
// children of a collection — the source never actually recurses past one
// level regardless of what Depth asked for, and neither do we unless
// Config.RecursivePropfind opts in.
func handlePropfind(req *methodRequest) int {
	resolved, err := ResolvePath(req.mount, req.pathInfo)
	if err != nil {
		return writeError(req.w, http.StatusNotFound, "not found")
	}

	body, err := readBody(req)
	if err != nil {
		return writeError(req.w, http.StatusRequestEntityTooLarge, "request body too large")
	}

	mode, err := ParsePropfindMode(body)
	if err != nil {
		return dropConnection(req.w)
	}

	info, err := os.Stat(resolved.Abs)
	if err != nil {
		return writeError(req.w, http.StatusNotFound, "not found")
	}

	namesOnly := mode == PropfindNames
	self, err := gatherResourceProps(resolved.Abs, req.pathInfo, info, namesOnly)
	if err != nil {
		return writeError(req.w, http.StatusForbidden, "forbidden")
	}
	items := []ResourceProps{self}

	if info.IsDir() && req.r.Header.Get("Depth") != "0" {
		walkCtx, cancel := walkContext(req)
		defer cancel()
		items = append(items, listChildren(walkCtx, req, resolved.Abs, req.pathInfo, namesOnly)...)
	}

	req.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	req.w.WriteHeader(http.StatusMultiStatus)
	EncodeMultistatusPropfind(req.w, req.r.Proto, mode, items)
	return http.StatusMultiStatus
}

// walkContext merges the request's own context (cancelled on client
// disconnect) with an optional deadline from Config.WalkTimeout, so a deep
// RecursivePropfind walk can't outlive either. touka.MergeCtx is the
// engine's generic context-combinator; outside PROPFIND nothing in this
// package needs more than one parent context at a time, so this is the one
// call site that does.
func walkContext(req *methodRequest) (context.Context, context.CancelFunc) {
	base := req.r.Context()
	if !req.cfg.RecursivePropfind || req.cfg.WalkTimeout <= 0 {
		return context.WithCancel(base)
	}
	deadline, cancel := context.WithTimeout(context.Background(), req.cfg.WalkTimeout)
	merged, mergedCancel := touka.MergeCtx(base, deadline)
	return merged, func() { cancel(); mergedCancel() }
}

func listChildren(ctx context.Context, req *methodRequest, dirAbs, dirURI string, namesOnly bool) []ResourceProps {
	if ctx.Err() != nil {
		return nil
	}
	entries, err := os.ReadDir(dirAbs)
	if err != nil {
		return nil
	}

	var items []ResourceProps
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		childInfo, err := entry.Info()
		if err != nil {
			continue
		}
		childAbs := filepath.Join(dirAbs, entry.Name())
		childURI := joinHref(dirURI, entry.Name())

		childItem, err := gatherResourceProps(childAbs, childURI, childInfo, namesOnly)
		if err != nil {
			continue
		}
		items = append(items, childItem)

		if req.cfg.RecursivePropfind && req.r.Header.Get("Depth") != "1" && childInfo.IsDir() {
			items = append(items, listChildren(ctx, req, childAbs, childURI, namesOnly)...)
		}
	}
	return items
}

func joinHref(dirURI, name string) string {
	if strings.HasSuffix(dirURI, "/") {
		return dirURI + name
	}
	return dirURI + "/" + name
}

func gatherResourceProps(abs, uri string, info os.FileInfo, namesOnly bool) (ResourceProps, error) {
	deadProps, err := ListDeadProperties(abs, !namesOnly)
	if err != nil {
		return ResourceProps{}, err
	}

	props := ResourceProps{
		URI:          uri,
		IsCollection: info.IsDir(),
		CreationDate: info.ModTime(),
		LastModified: info.ModTime(),
		DeadProps:    deadProps,
	}
	if !info.IsDir() {
		props.ContentLength = info.Size()
		if ctype := mimeTypeFor(abs); ctype != "" {
			props.ContentType = ctype
		}
	}
	return props, nil
}
