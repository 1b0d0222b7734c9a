// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"net/http"

	"github.com/go-json-experiment/json"
	touka "github.com/infinite-iroha/touka"
)

// lockSnapshot is the JSON shape returned by the debug locks endpoint.
type lockSnapshot struct {
	Count int               `json:"count"`
	Locks map[string]string `json:"locks"`
}

// DebugLocksHandler renders cfg's lock table as JSON, for an operator
// introspection endpoint registered alongside the WebDAV mount (not part of
// RFC 4918, and never reachable through a WebDAV method verb).
func DebugLocksHandler(cfg *Config) touka.HandlerFunc {
	return func(c *touka.Context) {
		snap := cfg.LockCache.Snapshot()
		body := lockSnapshot{Count: len(snap), Locks: snap}
		c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
		c.Writer.WriteHeader(http.StatusOK)
		if err := json.MarshalWrite(c.Writer, body); err != nil {
			c.Errorf("webdav: failed to encode lock snapshot: %v", err)
		}
		c.Abort()
	}
}
