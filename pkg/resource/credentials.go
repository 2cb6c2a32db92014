package resource

import "net/http"

// Credentials attach a precomputed credential to a request.
// *session.Session implements Credentials as a session cookie.
type Credentials interface {
	Authorize(req *http.Request)
}

// UsernamePassword authenticates with HTTP Basic.
type UsernamePassword struct {
	Username string
	Password string
}

func (c UsernamePassword) Authorize(req *http.Request) {
	req.SetBasicAuth(c.Username, c.Password)
}

// Token authenticates with a bearer token.
type Token string

func (t Token) Authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+string(t))
}
