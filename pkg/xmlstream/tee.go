package xmlstream

import "encoding/xml"

// Tee forwards every event to each of its handlers in order. The first
// handler error stops delivery of that event and is returned.
type Tee []Handler

// NewTee returns a Tee over the non-nil handlers.
func NewTee(handlers ...Handler) Tee {
	t := make(Tee, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			t = append(t, h)
		}
	}
	return t
}

func (t Tee) each(fn func(Handler) error) error {
	for _, h := range t {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

func (t Tee) StartDocument() error {
	return t.each(func(h Handler) error { return h.StartDocument() })
}

func (t Tee) StartElement(start xml.StartElement) error {
	return t.each(func(h Handler) error { return h.StartElement(start) })
}

func (t Tee) EndElement(end xml.EndElement) error {
	return t.each(func(h Handler) error { return h.EndElement(end) })
}

func (t Tee) CharData(data xml.CharData) error {
	return t.each(func(h Handler) error { return h.CharData(data) })
}

func (t Tee) EndDocument() error {
	return t.each(func(h Handler) error { return h.EndDocument() })
}

func (t Tee) Comment(c xml.Comment) error {
	return t.each(func(h Handler) error { return forward(h, c) })
}

func (t Tee) ProcInst(p xml.ProcInst) error {
	return t.each(func(h Handler) error { return forward(h, p) })
}
