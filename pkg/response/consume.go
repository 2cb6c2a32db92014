package response

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/Sternrassler/ps-bridge/pkg/xmlstream"
)

// take hands out the body exactly once.
func (r *Response) take() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case consumed:
		return nil, ErrAlreadyConsumed
	case unavailable:
		return nil, ErrNotAvailable
	}
	r.state = consumed
	return r.body, nil
}

// release closes body and runs the close hook once.
func (r *Response) release(body io.Closer) {
	_ = body.Close()

	r.mu.Lock()
	hook := r.onClose
	r.onClose = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// fail records a local failure and returns it as an *Error.
func (r *Response) fail(status Status, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = status
	r.message = err.Error()
	r.err = &Error{Status: status, Code: r.code, Message: r.message, Err: err}
	return r.err
}

// failParse maps a dispatcher error to IOError or ProcessError.
func (r *Response) failParse(err error) error {
	var readErr *xmlstream.ReadError
	if errors.As(err, &readErr) {
		return r.fail(IOError, readErr.Err)
	}
	return r.fail(ProcessError, err)
}

// ConsumeBytes reads the whole body.
func (r *Response) ConsumeBytes() ([]byte, error) {
	body, err := r.take()
	if err != nil {
		return nil, err
	}
	defer r.release(body)

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, r.fail(IOError, err)
	}
	return data, nil
}

// ConsumeString reads the whole body and decodes it with the detected
// charset, or as UTF-8 if none was detected.
func (r *Response) ConsumeString() (string, error) {
	data, err := r.ConsumeBytes()
	if err != nil {
		return "", err
	}
	if xmlstream.IsUTF8(r.charset) {
		return string(data), nil
	}

	enc, err := htmlindex.Get(r.charset)
	if err != nil {
		return "", r.fail(ProcessError, fmt.Errorf("unsupported charset %q: %w", r.charset, err))
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", r.fail(ProcessError, fmt.Errorf("decode %s: %w", r.charset, err))
	}
	return string(decoded), nil
}

// takeXML checks the media type before handing out the body, so a non-XML
// body stays unread.
func (r *Response) takeXML() (io.ReadCloser, error) {
	if !r.IsXML() {
		return nil, r.fail(ProcessError, fmt.Errorf("%w: %q", ErrNotXML, r.mediaType))
	}
	return r.take()
}

// dispatch streams the body into h and records the service error.
func (r *Response) dispatch(h xmlstream.Handler, duplex bool) error {
	body, err := r.takeXML()
	if err != nil {
		return err
	}
	defer r.release(body)

	res, err := xmlstream.Dispatch(body, h, xmlstream.Options{Charset: r.charset, Duplex: duplex})
	if err != nil {
		return r.failParse(err)
	}
	r.setServiceError(res.ServiceError)
	return nil
}

func (r *Response) setServiceError(se *xmlstream.ServiceError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parsed = true
	r.serviceError = se
	if se != nil && se.Message != "" && r.status != Successful {
		r.message = se.Message
	}
}

// ConsumeXML streams the body into h. An error envelope is routed to the
// error extractor instead and is available from ServiceError afterwards.
func (r *Response) ConsumeXML(h xmlstream.Handler) error {
	return r.dispatch(h, false)
}

// CopyXML re-serializes the body to w. Error envelopes are copied as well
// and also recorded as the service error.
func (r *Response) CopyXML(w io.Writer) error {
	return r.dispatch(xmlstream.NewCopy(w), true)
}

// ConsumeStreaming materializes the items produced by h. An error envelope
// yields no items and is recorded as the service error.
func ConsumeStreaming[T any](r *Response, h xmlstream.StreamHandler[T]) ([]T, error) {
	body, err := r.takeXML()
	if err != nil {
		return nil, err
	}
	defer r.release(body)

	items, se, err := xmlstream.Stream(body, h, xmlstream.Options{Charset: r.charset})
	if err != nil {
		return nil, r.failParse(err)
	}
	r.setServiceError(se)
	return items, nil
}

// ConsumeItem returns the first item produced by h, or the zero value.
func ConsumeItem[T any](r *Response, h xmlstream.StreamHandler[T]) (T, error) {
	var zero T
	items, err := ConsumeStreaming(r, h)
	if err != nil || len(items) == 0 {
		return zero, err
	}
	return items[0], nil
}

// ServiceError returns the error envelope of the body, parsing the body if
// it was not consumed yet. It returns nil if the body is not an error
// envelope, is not XML, or was consumed without being parsed. Concurrent
// callers wait for the first parse and share its result.
func (r *Response) ServiceError() (*xmlstream.ServiceError, error) {
	r.parseMu.Lock()
	defer r.parseMu.Unlock()

	r.mu.Lock()
	parsed, se, state := r.parsed, r.serviceError, r.state
	r.mu.Unlock()

	switch {
	case parsed:
		return se, nil
	case state != available || !r.IsXML():
		return nil, nil
	}
	return r.parseServiceError()
}

// ConsumeServiceError parses the body for its error envelope only,
// discarding any other content. It is idempotent once the body has been
// parsed by any XML consume method.
func (r *Response) ConsumeServiceError() (*xmlstream.ServiceError, error) {
	r.parseMu.Lock()
	defer r.parseMu.Unlock()

	r.mu.Lock()
	parsed, se := r.parsed, r.serviceError
	r.mu.Unlock()
	if parsed {
		return se, nil
	}
	return r.parseServiceError()
}

// parseServiceError runs the dispatcher for the envelope; parseMu is held.
func (r *Response) parseServiceError() (*xmlstream.ServiceError, error) {
	if err := r.dispatch(nil, false); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.serviceError, nil
}

// Consume reads and discards the body.
func (r *Response) Consume() error {
	body, err := r.take()
	if err != nil {
		return err
	}
	defer r.release(body)

	if _, err := io.Copy(io.Discard, body); err != nil {
		return r.fail(IOError, err)
	}
	return nil
}

// Close releases the body without reading it. Further consume calls fail
// with ErrAlreadyConsumed. Closing a consumed response is a no-op.
func (r *Response) Close() error {
	body, err := r.take()
	if err != nil {
		return nil
	}
	r.release(body)
	return nil
}

// BufferBody reads a body of at most limit bytes into memory and returns it
// while keeping the response consumable. If the body is larger, ok is false
// and the response still streams the complete body.
func (r *Response) BufferBody(limit int64) (data []byte, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case consumed:
		return nil, false, ErrAlreadyConsumed
	case unavailable:
		return nil, false, ErrNotAvailable
	}

	orig := r.body
	data, err = io.ReadAll(io.LimitReader(orig, limit+1))
	if err != nil {
		_ = orig.Close()
		r.state = consumed
		r.status = IOError
		r.message = err.Error()
		r.err = &Error{Status: IOError, Code: r.code, Message: r.message, Err: err}
		return nil, false, r.err
	}

	if int64(len(data)) > limit {
		r.body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(data), orig), orig}
		return nil, false, nil
	}

	_ = orig.Close()
	r.body = io.NopCloser(bytes.NewReader(data))
	r.length = int64(len(data))
	return data, true, nil
}
