// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package webdav

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// davNS is the WebDAV XML namespace every standard element lives in.
const davNS = "DAV:"

// ErrMalformedXML signals a parse error on a request body: a malformed XML
// document or one whose root element is not what the method expects. Per
// spec §7, handlers treat this as "drop the connection" (no response
// written), matching the source's behavior rather than RFC 4918's
// recommended 400.
var ErrMalformedXML = errors.New("webdav: malformed request body")

// PropfindMode selects which shape of PROPFIND response to build.
type PropfindMode int

const (
	// PropfindValues renders each property with its current value
	// ("prop" or "allprop" request bodies, or no body at all).
	PropfindValues PropfindMode = iota
	// PropfindNames renders only empty-bodied property elements
	// ("propname" request bodies).
	PropfindNames
)

// ParsePropfindMode parses a PROPFIND request body and decides which mode
// to respond with. An empty body defaults to PropfindValues, matching the
// source's "doc == NULL" branch.
func ParsePropfindMode(body []byte) (PropfindMode, error) {
	if len(body) == 0 {
		return PropfindValues, nil
	}

	var req struct {
		XMLName  xml.Name  `xml:"propfind"`
		Prop     *struct{} `xml:"DAV: prop"`
		Allprop  *struct{} `xml:"DAV: allprop"`
		Propname *struct{} `xml:"DAV: propname"`
	}
	if err := xml.Unmarshal(body, &req); err != nil {
		return 0, ErrMalformedXML
	}
	if req.XMLName.Local != "propfind" {
		return 0, ErrMalformedXML
	}

	switch {
	case req.Prop != nil, req.Allprop != nil:
		return PropfindValues, nil
	case req.Propname != nil:
		return PropfindNames, nil
	default:
		// No recognized child: the source falls through and writes no
		// multistatus body at all. Callers check for this by treating
		// it the same as a malformed body.
		return 0, ErrMalformedXML
	}
}

// PropOp is one "set" or "remove" instruction parsed from a PROPPATCH body.
type PropOp struct {
	Remove    bool
	LocalName string
	Namespace string
	Value     string
}

// ParsePropertyUpdate parses a PROPPATCH request body, preserving document
// order across interleaved <set> and <remove> blocks, the way the source
// walks propertyupdate's children in sequence.
func ParsePropertyUpdate(body []byte) ([]PropOp, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	root, err := nextStartElement(dec)
	if err != nil || root == nil || root.Name.Local != "propertyupdate" {
		return nil, ErrMalformedXML
	}

	var ops []PropOp
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, ErrMalformedXML
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == davNS && (t.Name.Local == "set" || t.Name.Local == "remove") {
				remove := t.Name.Local == "remove"
				propOps, err := parsePropBlock(dec, remove)
				if err != nil {
					return nil, err
				}
				ops = append(ops, propOps...)
			} else {
				if err := dec.Skip(); err != nil {
					return nil, ErrMalformedXML
				}
			}
		case xml.EndElement:
			depth--
		}
	}
	return ops, nil
}

// parsePropBlock reads the <prop> child of a <set>/<remove> element and
// returns one PropOp per grandchild element, in document order.
func parsePropBlock(dec *xml.Decoder, remove bool) ([]PropOp, error) {
	var ops []PropOp
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, ErrMalformedXML
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == davNS && t.Name.Local == "prop" {
				propOps, err := decodePropChildren(dec, t, remove)
				if err != nil {
					return nil, err
				}
				ops = append(ops, propOps...)
				continue
			}
			if err := dec.Skip(); err != nil {
				return nil, ErrMalformedXML
			}
		case xml.EndElement:
			// </set> or </remove>: the whole block has been consumed.
			return ops, nil
		}
	}
}

func decodePropChildren(dec *xml.Decoder, start xml.StartElement, remove bool) ([]PropOp, error) {
	var ops []PropOp
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, ErrMalformedXML
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var raw struct {
				Value string `xml:",chardata"`
			}
			if err := dec.DecodeElement(&raw, &t); err != nil {
				return nil, ErrMalformedXML
			}
			namespace := t.Name.Space
			if namespace == davNS {
				namespace = ""
			}
			ops = append(ops, PropOp{
				Remove:    remove,
				LocalName: t.Name.Local,
				Namespace: namespace,
				Value:     raw.Value,
			})
		case xml.EndElement:
			if t.Name == start.Name {
				return ops, nil
			}
		}
	}
}

func nextStartElement(dec *xml.Decoder) (*xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return &se, nil
		}
	}
}

// ResourceProps is the fully-gathered set of properties for one resource,
// ready for PROPFIND serialization (spec §4.3 "with values" / "names
// only" shapes).
type ResourceProps struct {
	URI           string
	IsCollection  bool
	ContentLength int64
	ContentType   string
	CreationDate  time.Time
	LastModified  time.Time
	DeadProps     []DeadProperty
}

// PropOpResult is one PROPPATCH outcome, ready for serialization.
type PropOpResult struct {
	LocalName string
	Namespace string
	Forbidden bool
}

// xmlBuilder writes a hand-assembled WebDAV XML document one element at a
// time, the same way the source builds its libxml2 DOM node by node.
type xmlBuilder struct {
	enc *xml.Encoder
	err error
}

func newXMLBuilder(w io.Writer) *xmlBuilder {
	io.WriteString(w, xml.Header)
	enc := xml.NewEncoder(w)
	enc.Indent("", " ")
	return &xmlBuilder{enc: enc}
}

func (b *xmlBuilder) tok(t xml.Token) {
	if b.err != nil {
		return
	}
	b.err = b.enc.EncodeToken(t)
}

func (b *xmlBuilder) start(local string, attrs ...xml.Attr) {
	b.tok(xml.StartElement{Name: xml.Name{Local: local}, Attr: attrs})
}

func (b *xmlBuilder) startNS(ns, local string) {
	b.tok(xml.StartElement{Name: xml.Name{Space: ns, Local: local}})
}

func (b *xmlBuilder) end(local string) {
	b.tok(xml.EndElement{Name: xml.Name{Local: local}})
}

func (b *xmlBuilder) endNS(ns, local string) {
	b.tok(xml.EndElement{Name: xml.Name{Space: ns, Local: local}})
}

func (b *xmlBuilder) text(s string) {
	b.tok(xml.CharData([]byte(s)))
}

func (b *xmlBuilder) textElem(local, text string) {
	b.start(local)
	b.text(text)
	b.end(local)
}

func (b *xmlBuilder) emptyElem(local string) {
	b.start(local)
	b.end(local)
}

func (b *xmlBuilder) finish() error {
	if b.err != nil {
		return b.err
	}
	return b.enc.Flush()
}

func writeDeadProp(b *xmlBuilder, dp DeadProperty, withValues bool) {
	if dp.Namespace != "" {
		b.startNS(dp.Namespace, dp.LocalName)
	} else {
		b.start(dp.LocalName)
	}
	if withValues && dp.HasValue {
		b.text(dp.Value)
	}
	if dp.Namespace != "" {
		b.endNS(dp.Namespace, dp.LocalName)
	} else {
		b.end(dp.LocalName)
	}
}

// EncodeMultistatusPropfind serializes a PROPFIND 207 Multi-Status
// response body (spec §4.3).
func EncodeMultistatusPropfind(w io.Writer, protocol string, mode PropfindMode, items []ResourceProps) error {
	b := newXMLBuilder(w)
	b.start("D:multistatus", xml.Attr{Name: xml.Name{Local: "xmlns:D"}, Value: davNS})
	for _, it := range items {
		writePropfindResponse(b, protocol, mode, it)
	}
	b.end("D:multistatus")
	return b.finish()
}

func writePropfindResponse(b *xmlBuilder, protocol string, mode PropfindMode, it ResourceProps) {
	b.start("D:response")
	b.textElem("D:href", encodeHref(it.URI))
	b.start("D:propstat")
	b.textElem("D:status", protocol+" 200 OK")
	b.start("D:prop")

	withValues := mode == PropfindValues
	if withValues {
		b.textElem("D:displayname", it.URI)
		b.start("D:resourcetype")
		if it.IsCollection {
			b.emptyElem("D:collection")
		}
		b.end("D:resourcetype")
		if !it.IsCollection {
			b.textElem("D:getcontentlength", strconv.FormatInt(it.ContentLength, 10))
			if it.ContentType != "" {
				b.textElem("D:getcontenttype", it.ContentType)
			}
		}
		b.textElem("D:creationdate", formatHTTPDate(it.CreationDate))
		b.textElem("D:getlastmodified", formatHTTPDate(it.LastModified))
		b.emptyElem("D:executable")
	} else {
		b.emptyElem("D:displayname")
		b.emptyElem("D:resourcetype")
		if !it.IsCollection {
			b.emptyElem("D:getcontentlength")
			b.emptyElem("D:getcontenttype")
		}
		b.emptyElem("D:creationdate")
		b.emptyElem("D:getlastmodified")
	}

	for _, dp := range it.DeadProps {
		writeDeadProp(b, dp, withValues)
	}

	b.end("D:prop")
	b.end("D:propstat")
	b.end("D:response")
}

// EncodeMultistatusProppatch serializes a PROPPATCH 207 Multi-Status
// response body. When strictShape is false (source-faithful, the default)
// the per-property status is nested inside <prop>, reproducing the
// source's layout; when true it is emitted as a sibling of <prop>, per
// RFC 4918 (spec §9 open question).
func EncodeMultistatusProppatch(w io.Writer, protocol, href string, ops []PropOpResult, strictShape bool) error {
	b := newXMLBuilder(w)
	b.start("D:multistatus", xml.Attr{Name: xml.Name{Local: "xmlns:D"}, Value: davNS})
	b.start("D:response")
	b.textElem("D:href", encodeHref(href))

	for _, op := range ops {
		status := protocol + " 200 OK"
		if op.Forbidden {
			status = protocol + " 403 Forbidden"
		}

		b.start("D:propstat")
		b.start("D:prop")
		if op.Namespace != "" {
			b.startNS(op.Namespace, op.LocalName)
			b.endNS(op.Namespace, op.LocalName)
		} else {
			b.start(op.LocalName)
			b.end(op.LocalName)
		}
		if !strictShape {
			b.textElem("D:status", status)
		}
		b.end("D:prop")
		if strictShape {
			b.textElem("D:status", status)
		}
		b.end("D:propstat")
	}

	b.end("D:response")
	b.end("D:multistatus")
	return b.finish()
}

func encodeHref(uri string) string {
	return (&url.URL{Path: uri}).EscapedPath()
}

func formatHTTPDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(http.TimeFormat)
}
