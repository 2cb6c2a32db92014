// Package resource describes the requests the client sends: which method and
// path, which parameters and how they are encoded, and which credentials are
// attached.
package resource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FormContentType is used for POST/PUT/PATCH parameters sent as a body.
const FormContentType = "application/x-www-form-urlencoded; charset=utf-8"

// Parameter is a single name/value pair. Names may repeat.
type Parameter struct {
	Name  string
	Value string
}

// Descriptor is an immutable request description. The With* methods return
// modified copies.
type Descriptor struct {
	Method string

	// Path is relative to the client's site URL, or absolute.
	Path string

	Parameters []Parameter
	Header     http.Header

	Body        []byte
	ContentType string

	// IncludeErrorContent keeps the body of non-2xx responses available to
	// the caller instead of reading it only for its error envelope.
	IncludeErrorContent bool

	// Timeout bounds the whole exchange; zero uses the client default.
	Timeout time.Duration
}

// New returns a descriptor for method and path.
func New(method, path string, params ...Parameter) Descriptor {
	return Descriptor{
		Method:     strings.ToUpper(method),
		Path:       path,
		Parameters: append([]Parameter(nil), params...),
	}
}

// Get returns a GET descriptor.
func Get(path string, params ...Parameter) Descriptor {
	return New(http.MethodGet, path, params...)
}

// Post returns a POST descriptor; parameters are sent form-encoded unless a
// body is set.
func Post(path string, params ...Parameter) Descriptor {
	return New(http.MethodPost, path, params...)
}

// With returns a copy with an additional parameter.
func (d Descriptor) With(name, value string) Descriptor {
	params := make([]Parameter, len(d.Parameters), len(d.Parameters)+1)
	copy(params, d.Parameters)
	d.Parameters = append(params, Parameter{Name: name, Value: value})
	return d
}

// Has reports whether a parameter named name is present.
func (d Descriptor) Has(name string) bool {
	for _, p := range d.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// WithHeader returns a copy with header key set to value.
func (d Descriptor) WithHeader(key, value string) Descriptor {
	h := d.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(key, value)
	d.Header = h
	return d
}

// WithBody returns a copy sending body with the given content type.
func (d Descriptor) WithBody(contentType string, body []byte) Descriptor {
	d.ContentType = contentType
	d.Body = append([]byte(nil), body...)
	return d
}

func (d Descriptor) WithErrorContent() Descriptor {
	d.IncludeErrorContent = true
	return d
}

func (d Descriptor) WithTimeout(timeout time.Duration) Descriptor {
	d.Timeout = timeout
	return d
}

// bodyParams reports whether parameters travel in a form body.
func (d Descriptor) bodyParams() bool {
	switch d.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return d.Body == nil
	}
	return false
}

// URL resolves the descriptor against base. Parameters are added to the
// query unless they are sent as a form body.
func (d Descriptor) URL(base *url.URL) (*url.URL, error) {
	ref, err := url.Parse(d.Path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", d.Path, err)
	}

	var u *url.URL
	if ref.IsAbs() || base == nil {
		u = ref
	} else {
		joined := *base
		joined.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
		joined.RawPath = ""
		joined.RawQuery = ref.RawQuery
		joined.Fragment = ""
		u = &joined
	}

	if !d.bodyParams() && len(d.Parameters) > 0 {
		q := u.Query()
		for _, p := range d.Parameters {
			q.Add(p.Name, p.Value)
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// Request builds the HTTP request for the descriptor against base.
func (d Descriptor) Request(ctx context.Context, base *url.URL) (*http.Request, error) {
	u, err := d.URL(base)
	if err != nil {
		return nil, err
	}

	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body        io.Reader
		contentType = d.ContentType
	)
	switch {
	case d.Body != nil:
		body = bytes.NewReader(d.Body)
	case d.bodyParams():
		form := url.Values{}
		for _, p := range d.Parameters {
			form.Add(p.Name, p.Value)
		}
		body = strings.NewReader(form.Encode())
		contentType = FormContentType
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range d.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}
