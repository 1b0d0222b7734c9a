// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"net/http"

	touka "github.com/infinite-iroha/touka"
)

// Register mounts a Dispatcher built from cfg onto engine at prefix,
// answering every method in Methods. Config.Mountpoints must already
// contain a Mountpoint whose Prefix matches prefix; Register does not
// infer one.
//
// When cfg.LockMode is LockModeEnforced, a guard middleware runs ahead of
// the dispatcher on every write method and rejects one held by a
// conflicting lock token with 423 Locked. The guard is itself built with
// engine.UseChainIf, so in LockModeSourceFaithful it is a zero-cost
// passthrough rather than a conditional branch evaluated per request.
func Register(engine *touka.Engine, prefix string, cfg *Config) {
	dispatcher := NewDispatcher(cfg)
	guard := engine.UseChainIf(cfg.LockMode == LockModeEnforced, lockGuardMiddleware(cfg))
	// Dispatcher is a plain http.Handler (spec §1/§6: the embedding HTTP
	// server is an external collaborator), so it mounts onto the engine
	// through the same std-handler adapter any other third-party
	// http.Handler would use, rather than a bespoke touka-specific shim.
	engine.HandleFunc(Methods, prefix+"/*path", guard, touka.AdapterStdHandle(dispatcher))
}

// lockGuardMiddleware enforces LockModeEnforced for write methods ahead of
// the Dispatcher itself, which only ever checks the lock table for LOCK and
// UNLOCK.
func lockGuardMiddleware(cfg *Config) touka.HandlerFunc {
	return func(c *touka.Context) {
		if !isWriteMethod(c.Request.Method) {
			c.Next()
			return
		}
		_, pathInfo, ok := cfg.mountpointFor(c.Request.URL.Path)
		if !ok || pathInfo == "" {
			c.Next()
			return
		}
		key := LockKey(c.Request.Host, pathInfo)
		ifToken := extractIfToken(c.Request.Header.Get("If"))
		if locked, matches := cfg.LockCache.Check(key, ifToken); locked && !matches {
			c.Writer.WriteHeader(http.StatusLocked)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Serve is a convenience wrapper around Register for the common case of a
// single mountpoint rooted at rootDir, source-faithful lock behavior, and
// the engine's own logger.
func Serve(engine *touka.Engine, prefix, rootDir string) error {
	mount, err := NewMountpoint(prefix, rootDir)
	if err != nil {
		return err
	}
	cfg := &Config{
		Mountpoints: []Mountpoint{mount},
		LockCache:   NewLockCache(nil),
		Logger:      engine.LogReco,
	}
	Register(engine, prefix, cfg)
	return nil
}
