// Package xmlstream routes streamed XML response bodies to push-style
// handlers, separating the server's error envelope from ordinary content in
// a single pass.
package xmlstream

import "encoding/xml"

// Handler receives push-style parse events.
//
// CharData is only valid for the duration of the call; handlers that retain
// it must copy it.
type Handler interface {
	StartDocument() error
	StartElement(start xml.StartElement) error
	EndElement(end xml.EndElement) error
	CharData(data xml.CharData) error
	EndDocument() error
}

// LexicalHandler is implemented by handlers that also want comments and
// processing instructions. The XML declaration is never forwarded.
type LexicalHandler interface {
	Comment(c xml.Comment) error
	ProcInst(p xml.ProcInst) error
}

// BaseHandler implements every event as a no-op. Embed it to override only
// the events of interest.
type BaseHandler struct{}

func (BaseHandler) StartDocument() error                { return nil }
func (BaseHandler) StartElement(xml.StartElement) error { return nil }
func (BaseHandler) EndElement(xml.EndElement) error     { return nil }
func (BaseHandler) CharData(xml.CharData) error         { return nil }
func (BaseHandler) EndDocument() error                  { return nil }
func (BaseHandler) Comment(xml.Comment) error           { return nil }
func (BaseHandler) ProcInst(xml.ProcInst) error         { return nil }

// forward delivers a single decoder token to h.
func forward(h Handler, tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		return h.StartElement(t)
	case xml.EndElement:
		return h.EndElement(t)
	case xml.CharData:
		return h.CharData(t)
	case xml.Comment:
		if lh, ok := h.(LexicalHandler); ok {
			return lh.Comment(t)
		}
	case xml.ProcInst:
		if t.Target == "xml" {
			return nil
		}
		if lh, ok := h.(LexicalHandler); ok {
			return lh.ProcInst(t)
		}
	}
	return nil
}
