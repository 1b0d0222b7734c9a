// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"net/url"
	"strings"
	"syscall"

	"github.com/pkg/xattr"
)

// xattrPrefix namespaces every dead property attribute, exactly as the
// source's "user.uwsgi.webdav." prefix does.
const xattrPrefix = "user.uwsgi.webdav."

// nsSeparator splits the namespace portion of an attribute name from its
// local name. The source forbids "|" inside a raw namespace URI; we instead
// percent-encode the namespace before storing it, so the separator can
// never collide with user data (spec §9 "dead-property namespace encoding").
const nsSeparator = '|'

// DeadProperty is a client-supplied property attached to a resource.
type DeadProperty struct {
	LocalName string
	Namespace string // empty means "no namespace"
	Value     string
	HasValue  bool // false when the caller only asked for names
}

func attrName(localName, namespace string) string {
	if namespace == "" {
		return xattrPrefix + localName
	}
	return xattrPrefix + url.QueryEscape(namespace) + string(nsSeparator) + localName
}

func splitAttrName(name string) (localName, namespace string) {
	rest := strings.TrimPrefix(name, xattrPrefix)
	idx := strings.IndexByte(rest, nsSeparator)
	if idx < 0 {
		return rest, ""
	}
	ns, err := url.QueryUnescape(rest[:idx])
	if err != nil {
		ns = rest[:idx]
	}
	return rest[idx+1:], ns
}

// isUnsupported reports whether err indicates the platform or filesystem
// has no extended-attribute support, in which case callers must degrade to
// a no-op success rather than surface an error (spec §4.2 portability
// fallback).
func isUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if xe, ok := err.(*xattr.Error); ok {
		return xe.Err == syscall.ENOTSUP || xe.Err == syscall.EOPNOTSUPP
	}
	return false
}

// SetDeadProperty persists a dead property as an extended attribute on
// abs. An empty value is a legal, explicit property value.
func SetDeadProperty(abs, localName, namespace, value string) error {
	err := xattr.Set(abs, attrName(localName, namespace), []byte(value))
	if isUnsupported(err) {
		return nil
	}
	return err
}

// DeleteDeadProperty removes a previously set dead property.
func DeleteDeadProperty(abs, localName, namespace string) error {
	err := xattr.Remove(abs, attrName(localName, namespace))
	if isUnsupported(err) {
		return nil
	}
	return err
}

// ListDeadProperties enumerates every dead property stored on abs. When
// withValues is false, only names/namespaces are returned (PROPFIND
// propname mode never reads attribute values).
func ListDeadProperties(abs string, withValues bool) ([]DeadProperty, error) {
	names, err := xattr.List(abs)
	if err != nil {
		if isUnsupported(err) {
			return nil, nil
		}
		return nil, err
	}

	props := make([]DeadProperty, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, xattrPrefix) {
			continue
		}
		localName, namespace := splitAttrName(name)
		dp := DeadProperty{LocalName: localName, Namespace: namespace}
		if withValues {
			raw, err := xattr.Get(abs, name)
			if err != nil {
				if isUnsupported(err) {
					continue
				}
				return nil, err
			}
			dp.Value = string(raw)
			dp.HasValue = true
		}
		props = append(props, dp)
	}
	return props, nil
}
