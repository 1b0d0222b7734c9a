// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	mount, err := NewMountpoint("", dir)
	if err != nil {
		t.Fatalf("NewMountpoint: %v", err)
	}
	cfg := &Config{Mountpoints: []Mountpoint{mount}}
	return NewDispatcher(cfg), dir
}

func doRequest(d *Dispatcher, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)
	return w
}

func TestDispatcherOptions(t *testing.T) {
	d, _ := newTestDispatcher(t)
	w := doRequest(d, http.MethodOptions, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("OPTIONS: got %d", w.Code)
	}
	if w.Header().Get("Dav") != "1, 2" {
		t.Errorf("expected Dav: 1, 2, got %q", w.Header().Get("Dav"))
	}
}

func TestDispatcherNoMountpoints(t *testing.T) {
	cfg := &Config{}
	d := NewDispatcher(cfg)
	w := doRequest(d, http.MethodOptions, "/", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 with no mountpoints configured, got %d", w.Code)
	}
}

func TestDispatcherEmptyPathInfo(t *testing.T) {
	dir := t.TempDir()
	mount, err := NewMountpoint("/dav", dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &Config{Mountpoints: []Mountpoint{mount}}
	d := NewDispatcher(cfg)
	w := doRequest(d, http.MethodOptions, "/dav", "", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for an empty path_info, got %d", w.Code)
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t)

	w := doRequest(d, http.MethodPut, "/hello.txt", "hello world", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("PUT: got %d, body %q", w.Code, w.Body.String())
	}

	w = doRequest(d, http.MethodGet, "/hello.txt", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET: got %d", w.Code)
	}
	if w.Body.String() != "hello world" {
		t.Errorf("GET body = %q; want %q", w.Body.String(), "hello world")
	}
}

func TestPutOntoCollectionRejected(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.Mkdir(dir+"/coll", 0755); err != nil {
		t.Fatal(err)
	}
	w := doRequest(d, http.MethodPut, "/coll", "body", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT onto a collection: got %d, want 405", w.Code)
	}
}

func TestMkcolThenAlreadyExists(t *testing.T) {
	d, _ := newTestDispatcher(t)

	r := httptest.NewRequest("MKCOL", "/new-dir", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first MKCOL: got %d, body %q", rec.Code, rec.Body.String())
	}

	r2 := httptest.NewRequest("MKCOL", "/new-dir", nil)
	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, r2)
	if rec2.Code != http.StatusMethodNotAllowed {
		t.Fatalf("second MKCOL on an existing collection: got %d, want 405", rec2.Code)
	}
}

func TestMkcolOnExistingFile(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/plain.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("MKCOL", "/plain.txt", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("MKCOL onto an existing regular file: got %d, want 405", rec.Code)
	}
}

func TestMkcolMissingParentConflict(t *testing.T) {
	d, _ := newTestDispatcher(t)
	r := httptest.NewRequest("MKCOL", "/no/such/parent", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusConflict {
		t.Errorf("MKCOL with a missing parent: got %d, want 409", rec.Code)
	}
}

func TestDeleteReturns200(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/victim.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodDelete, "/victim.txt", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Errorf("DELETE: got %d; the source returns 200, not 204", rec.Code)
	}
}

func TestDeleteMissingIs404(t *testing.T) {
	d, _ := newTestDispatcher(t)
	r := httptest.NewRequest(http.MethodDelete, "/nope.txt", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusNotFound {
		t.Errorf("DELETE of a missing resource: got %d, want 404", rec.Code)
	}
}

func TestPropfindDepthZeroSingleResponse(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/a.txt", []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir+"/b.txt", []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("PROPFIND", "/", nil)
	r.Header.Set("Depth", "0")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("PROPFIND Depth:0: got %d, body %q", rec.Code, rec.Body.String())
	}
	if n := strings.Count(rec.Body.String(), "<D:response>"); n != 1 {
		t.Errorf("expected exactly one D:response for Depth:0, got %d:\n%s", n, rec.Body.String())
	}
}

func TestPropfindDepthOneListsChildren(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/a.txt", []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("PROPFIND", "/", nil)
	r.Header.Set("Depth", "1")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("PROPFIND: got %d", rec.Code)
	}
	if n := strings.Count(rec.Body.String(), "<D:response>"); n != 2 {
		t.Errorf("expected 2 D:response entries (self + child), got %d:\n%s", n, rec.Body.String())
	}
}

func TestPropfindIncludesDotfiles(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/.hidden", []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("PROPFIND", "/", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("PROPFIND: got %d", rec.Code)
	}
	if n := strings.Count(rec.Body.String(), "<D:response>"); n != 2 {
		t.Errorf("expected 2 D:response entries (self + dotfile child), got %d:\n%s", n, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), ".hidden") {
		t.Errorf("expected PROPFIND to include dotfiles, unlike the directory-listing HTML view:\n%s", rec.Body.String())
	}
}

func TestPropfindRecursiveWalksNestedDirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir+"/sub/nested", 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir+"/sub/nested/deep.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	mount, err := NewMountpoint("", dir)
	if err != nil {
		t.Fatalf("NewMountpoint: %v", err)
	}
	cfg := &Config{
		Mountpoints:       []Mountpoint{mount},
		RecursivePropfind: true,
		WalkTimeout:       5 * time.Second,
	}
	d := NewDispatcher(cfg)

	r := httptest.NewRequest("PROPFIND", "/", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("PROPFIND: got %d, body %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "deep.txt") {
		t.Errorf("expected recursive walk to reach the nested file:\n%s", rec.Body.String())
	}
}

func TestProppatchSetReturnsMultistatus(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/doc.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	body := `<?xml version="1.0"?><propertyupdate xmlns="DAV:"><set><prop><color xmlns="x:">blue</color></prop></set></propertyupdate>`
	r := httptest.NewRequest("PROPPATCH", "/doc.txt", strings.NewReader(body))
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("PROPPATCH: got %d, body %q", rec.Code, rec.Body.String())
	}
}

func TestMoveOverwriteForbidden(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/src.txt", []byte("src"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir+"/dst.txt", []byte("dst"), 0644); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("MOVE", "/src.txt", nil)
	r.Header.Set("Destination", "http://example.com/dst.txt")
	r.Header.Set("Overwrite", "F")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("MOVE with Overwrite:F onto an existing destination: got %d, want 412", rec.Code)
	}
}

func TestMoveSucceeds(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/src.txt", []byte("src"), 0644); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("MOVE", "/src.txt", nil)
	r.Header.Set("Destination", "http://example.com/dst.txt")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusCreated {
		t.Fatalf("MOVE: got %d, body %q", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(dir + "/dst.txt"); err != nil {
		t.Errorf("expected dst.txt to exist after MOVE: %v", err)
	}
	if _, err := os.Stat(dir + "/src.txt"); !os.IsNotExist(err) {
		t.Errorf("expected src.txt to be gone after MOVE")
	}
}

func TestCopyCreatesIndependentFile(t *testing.T) {
	d, dir := newTestDispatcher(t)
	if err := os.WriteFile(dir+"/src.txt", []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("COPY", "/src.txt", nil)
	r.Header.Set("Destination", "http://example.com/copy.txt")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusCreated {
		t.Fatalf("COPY: got %d, body %q", rec.Code, rec.Body.String())
	}

	data, err := os.ReadFile(dir + "/copy.txt")
	if err != nil {
		t.Fatalf("expected copy.txt to exist: %v", err)
	}
	if string(data) != "original" {
		t.Errorf("copy.txt = %q; want %q", data, "original")
	}
	if _, err := os.Stat(dir + "/src.txt"); err != nil {
		t.Errorf("COPY must not remove the source: %v", err)
	}
}

func TestLockSourceFaithfulAlwaysSucceeds(t *testing.T) {
	d, _ := newTestDispatcher(t)
	r := httptest.NewRequest("LOCK", "/whatever.txt", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusCreated {
		t.Fatalf("LOCK: got %d", rec.Code)
	}
	if rec.Header().Get("Lock-Token") == "" {
		t.Errorf("expected a Lock-Token header")
	}
}

func TestLockEnforcedRejectsConflictingHolder(t *testing.T) {
	dir := t.TempDir()
	mount, err := NewMountpoint("", dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &Config{Mountpoints: []Mountpoint{mount}, LockMode: LockModeEnforced}
	d := NewDispatcher(cfg)

	r := httptest.NewRequest("LOCK", "/f.txt", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, r)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first LOCK: got %d", rec.Code)
	}

	r2 := httptest.NewRequest("LOCK", "/f.txt", nil)
	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, r2)
	if rec2.Code != http.StatusLocked {
		t.Errorf("second LOCK without the existing token: got %d, want 423", rec2.Code)
	}
}
