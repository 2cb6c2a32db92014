package xmlstream

import (
	"encoding/xml"
	"io"
)

// StreamHandler materializes typed items from a pull-style token stream.
type StreamHandler[T any] interface {
	// Ready reports whether start opens an item.
	Ready(start xml.StartElement) bool

	// Item reads the item opened by start. It must consume the tokens up to
	// and including the matching end element.
	Item(d *xml.Decoder, start xml.StartElement) (T, error)
}

// Stream pulls items from r without building a tree. Elements that are not
// items are descended into, so items may appear at any depth. When the root
// element is an error envelope no items are produced and the envelope is
// returned instead.
func Stream[T any](r io.Reader, h StreamHandler[T], opts Options) ([]T, *ServiceError, error) {
	d, src, err := newDecoder(r, opts.Charset)
	if err != nil {
		return nil, nil, err
	}

	var (
		items     []T
		rooted    bool
		extractor *ErrorExtractor
		root      rootGuard
	)

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return items, nil, classify(err, src)
		}
		if err := root.check(tok); err != nil {
			return items, nil, err
		}

		if extractor != nil {
			if err := forward(extractor, tok); err != nil {
				return items, nil, err
			}
			continue
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !rooted {
			rooted = true
			if start.Name.Local == ErrorElement {
				DispatchTotal.WithLabelValues(string(RouteError)).Inc()
				extractor = &ErrorExtractor{}
				if err := extractor.StartElement(start); err != nil {
					return nil, nil, err
				}
				continue
			}
			DispatchTotal.WithLabelValues(string(RouteContent)).Inc()
		}

		if h.Ready(start) {
			item, err := h.Item(d, start)
			if err != nil {
				return items, nil, classify(err, src)
			}
			items = append(items, item)
			root.skipped()
		}
	}

	if !rooted {
		return nil, nil, ErrNoElements
	}
	if extractor != nil {
		return nil, extractor.Result(), nil
	}
	return items, nil, nil
}

// Elements returns a StreamHandler that decodes every element with the given
// local name into a T using encoding/xml struct tags.
func Elements[T any](local string) StreamHandler[T] {
	return elementHandler[T]{local: local}
}

type elementHandler[T any] struct {
	local string
}

func (e elementHandler[T]) Ready(start xml.StartElement) bool {
	return start.Name.Local == e.local
}

func (e elementHandler[T]) Item(d *xml.Decoder, start xml.StartElement) (T, error) {
	var v T
	err := d.DecodeElement(&v, &start)
	return v, err
}
