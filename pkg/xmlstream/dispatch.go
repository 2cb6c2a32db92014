package xmlstream

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	// ErrNoElements is returned for bodies without a root element.
	ErrNoElements = errors.New("no elements")

	// ErrOutsideRoot is returned for elements or text outside the single
	// root element.
	ErrOutsideRoot = errors.New("content outside root element")

	// DispatchTotal counts dispatched documents by route.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_xml_dispatch_total",
		Help: "Total number of XML documents dispatched by route",
	}, []string{"route"}) // "content", "error", "duplex"
)

// Route names the handler selection made for a document.
type Route string

const (
	RouteContent Route = "content"
	RouteError   Route = "error"
	RouteDuplex  Route = "duplex"
)

// Options control how a body is decoded and routed.
type Options struct {
	// Charset is the transport-declared charset; empty or UTF-8 means the
	// body is decoded as declared by the document itself.
	Charset string

	// Duplex feeds an error envelope to both the error extractor and the
	// caller's handler instead of the extractor alone.
	Duplex bool
}

// ReadError wraps a failure of the underlying reader, as opposed to a
// malformed document.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "read xml: " + e.Err.Error() }

func (e *ReadError) Unwrap() error { return e.Err }

// Result describes a dispatched document.
type Result struct {
	Route        Route
	ServiceError *ServiceError
}

// Dispatch parses r in a single pass. Tokens before the root element are held
// back; once the root is seen the target is chosen (h for content, an
// ErrorExtractor for an error envelope, or both when opts.Duplex is set), the
// held tokens and the root are replayed into it and the rest of the document
// is streamed.
func Dispatch(r io.Reader, h Handler, opts Options) (Result, error) {
	if h == nil {
		h = BaseHandler{}
	}

	d, src, err := newDecoder(r, opts.Charset)
	if err != nil {
		return Result{}, err
	}

	var (
		res       Result
		target    Handler
		extractor *ErrorExtractor
		prolog    []xml.Token
		root      rootGuard
	)

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, classify(err, src)
		}
		if err := root.check(tok); err != nil {
			return res, err
		}

		if target != nil {
			if err := forward(target, tok); err != nil {
				return res, err
			}
			continue
		}

		switch t := tok.(type) {
		case xml.StartElement:
			target = h
			res.Route = RouteContent
			if t.Name.Local == ErrorElement {
				extractor = &ErrorExtractor{}
				if opts.Duplex {
					target = NewTee(extractor, h)
					res.Route = RouteDuplex
				} else {
					target = extractor
					res.Route = RouteError
				}
			}
			DispatchTotal.WithLabelValues(string(res.Route)).Inc()

			if err := target.StartDocument(); err != nil {
				return res, err
			}
			for _, held := range prolog {
				if err := forward(target, held); err != nil {
					return res, err
				}
			}
			if err := target.StartElement(t); err != nil {
				return res, err
			}
		case xml.Comment, xml.ProcInst:
			prolog = append(prolog, xml.CopyToken(t))
		}
	}

	if target == nil {
		return res, ErrNoElements
	}
	if extractor != nil {
		res.ServiceError = extractor.Result()
	}
	return res, target.EndDocument()
}

// trackingReader remembers the first non-EOF read failure so that transport
// errors can be told apart from syntax errors.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

func newDecoder(r io.Reader, charset string) (*xml.Decoder, *trackingReader, error) {
	src := &trackingReader{r: r}

	var in io.Reader = src
	transcoded := false
	if !IsUTF8(charset) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		in = enc.NewDecoder().Reader(src)
		transcoded = true
	}

	d := xml.NewDecoder(in)
	d.Strict = true
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if transcoded || IsUTF8(label) {
			return input, nil
		}
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return d, src, nil
}

func classify(err error, src *trackingReader) error {
	if src.err != nil {
		return &ReadError{Err: src.err}
	}
	return fmt.Errorf("parse xml: %w", err)
}

// rootGuard enforces a single root element. encoding/xml accepts any
// sequence of top-level elements and text.
type rootGuard struct {
	depth  int
	closed bool
}

func (g *rootGuard) check(tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		if g.closed {
			return fmt.Errorf("parse xml: %w: <%s>", ErrOutsideRoot, t.Name.Local)
		}
		g.depth++
	case xml.EndElement:
		g.depth--
		if g.depth == 0 {
			g.closed = true
		}
	case xml.CharData:
		if g.depth == 0 && len(bytes.TrimSpace(t)) > 0 {
			return fmt.Errorf("parse xml: %w: text", ErrOutsideRoot)
		}
	}
	return nil
}

// skipped records that the element whose start was last checked was read
// up to its end outside the token loop.
func (g *rootGuard) skipped() {
	g.depth--
	if g.depth == 0 {
		g.closed = true
	}
}

// IsUTF8 reports whether charset names UTF-8 or a subset of it; the empty
// charset counts as UTF-8.
func IsUTF8(charset string) bool {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}
