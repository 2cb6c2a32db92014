package response

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/ps-bridge/pkg/session"
	"github.com/Sternrassler/ps-bridge/pkg/xmlstream"
)

type bodyState int

const (
	unavailable bodyState = iota
	available
	consumed
)

// Options carry the exchange context a response is built with.
type Options struct {
	// Session is the session the request was sent with, if any.
	Session *session.Session

	// OnClose runs once when the body is closed, e.g. to cancel the
	// request's context.
	OnClose func()
}

// Content is a body held in memory, such as a cache entry.
type Content struct {
	Data      []byte
	MediaType string
	Charset   string
	ETag      string
}

// Response is the envelope of one exchange. Metadata is fixed at
// construction; the body can be consumed once. A Response is safe for
// concurrent use, but only one consume call succeeds.
type Response struct {
	code      int
	mediaType string
	charset   string
	etag      string
	header    http.Header
	session   *session.Session
	fromCache bool

	// parseMu serializes the service error parse so that concurrent callers
	// share one parse.
	parseMu sync.Mutex

	mu           sync.Mutex
	status       Status
	message      string
	length       int64
	err          error
	state        bodyState
	body         io.ReadCloser
	serviceError *xmlstream.ServiceError
	parsed       bool
	onClose      func()
}

// New wraps resp without reading its body. The session is replaced when resp
// issues one, and touched when the exchange succeeded.
func New(resp *http.Response, opts Options) *Response {
	r := &Response{
		code:    resp.StatusCode,
		status:  FromCode(resp.StatusCode),
		message: reason(resp),
		etag:    UnwrapETag(resp.Header.Get("ETag")),
		length:  resp.ContentLength,
		header:  resp.Header.Clone(),
		onClose: opts.OnClose,
	}
	if r.header == nil {
		r.header = http.Header{}
	}
	r.mediaType, r.charset = ParseContentType(resp.Header.Get("Content-Type"))
	r.session = session.Update(resp.Header, opts.Session, r.status == Successful)

	if resp.Body != nil {
		r.body = resp.Body
		r.state = available
	}
	return r
}

// Failed returns a response for an exchange that produced no body.
func Failed(status Status, err error, sess *session.Session) *Response {
	msg := status.String()
	if err != nil {
		msg = err.Error()
	}
	return &Response{
		status:  status,
		message: msg,
		err:     &Error{Status: status, Message: msg, Err: err},
		length:  -1,
		header:  http.Header{},
		session: sess,
	}
}

// WithSession sets the session the caller should keep and returns r. It is
// meant for responses that have not been handed out yet.
func (r *Response) WithSession(s *session.Session) *Response {
	r.session = s
	return r
}

// Cached returns a successful response backed by c. Metadata of live, the
// exchange that confirmed c, is carried over and live is closed.
func Cached(c Content, live *Response) *Response {
	r := &Response{
		code:      http.StatusOK,
		status:    Successful,
		message:   http.StatusText(http.StatusOK),
		mediaType: c.MediaType,
		charset:   c.Charset,
		etag:      c.ETag,
		length:    int64(len(c.Data)),
		header:    http.Header{},
		fromCache: true,
		state:     available,
		body:      io.NopCloser(bytes.NewReader(c.Data)),
	}
	if live != nil {
		r.header = live.header.Clone()
		r.session = live.session
		_ = live.Close()
	}
	r.header.Del("Content-Length")
	if c.MediaType != "" {
		ct := c.MediaType
		if c.Charset != "" {
			ct += "; charset=" + c.Charset
		}
		r.header.Set("Content-Type", ct)
	}
	if c.ETag != "" {
		r.header.Set("ETag", `"`+c.ETag+`"`)
	}
	return r
}

func reason(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if msg := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}

// Code is the HTTP status code, or 0 if no response was received.
func (r *Response) Code() int { return r.code }

func (r *Response) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Message is the reason phrase, the service error message or the failure
// description.
func (r *Response) Message() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message
}

// MediaType is the Content-Type without parameters.
func (r *Response) MediaType() string { return r.mediaType }

// Charset is the detected charset, or "" if unknown.
func (r *Response) Charset() string { return r.charset }

// ETag is the unquoted entity tag, or "".
func (r *Response) ETag() string { return r.etag }

// Length is the body length in bytes, or -1 if unknown.
func (r *Response) Length() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.length
}

// Header returns the response headers. It must not be modified.
func (r *Response) Header() http.Header { return r.header }

// Session is the session to use for subsequent requests.
func (r *Response) Session() *session.Session { return r.session }

// FromCache reports whether the body was served from a cache entry.
func (r *Response) FromCache() bool { return r.fromCache }

func (r *Response) IsXML() bool { return IsXML(r.mediaType) }

func (r *Response) IsSuccessful() bool { return r.Status() == Successful }

// IsAvailable reports whether the body can still be consumed.
func (r *Response) IsAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == available
}

// Err returns nil for successful responses and an *Error otherwise.
func (r *Response) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.status == Successful {
		return nil
	}
	return &Error{Status: r.status, Code: r.code, Message: r.message}
}
