// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import "net/http"

// handleProppatch implements PROPPATCH (uwsgi_wevdav_manage_proppatch):
// every set/remove operation is applied to the PropertyStore independently
// and reported back in its own propstat, rather than being all-or-nothing.
func handleProppatch(req *methodRequest) int {
	resolved, err := ResolvePath(req.mount, req.pathInfo)
	if err != nil {
		return writeError(req.w, http.StatusNotFound, "not found")
	}

	body, err := readBody(req)
	if err != nil {
		return writeError(req.w, http.StatusRequestEntityTooLarge, "request body too large")
	}

	ops, err := ParsePropertyUpdate(body)
	if err != nil {
		return dropConnection(req.w)
	}

	results := make([]PropOpResult, 0, len(ops))
	for _, op := range ops {
		var applyErr error
		if op.Remove {
			applyErr = DeleteDeadProperty(resolved.Abs, op.LocalName, op.Namespace)
		} else {
			applyErr = SetDeadProperty(resolved.Abs, op.LocalName, op.Namespace, op.Value)
		}
		results = append(results, PropOpResult{
			LocalName: op.LocalName,
			Namespace: op.Namespace,
			Forbidden: applyErr != nil,
		})
	}

	req.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	req.w.WriteHeader(http.StatusMultiStatus)
	EncodeMultistatusProppatch(req.w, req.r.Proto, req.pathInfo, results, req.cfg.StrictProppatchShape)
	return http.StatusMultiStatus
}
