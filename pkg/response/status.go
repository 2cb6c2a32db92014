// Package response wraps a single HTTP exchange with the content server in an
// envelope whose body can be consumed exactly once, as bytes, text, XML
// events or streamed items.
package response

// Status classifies the outcome of an exchange.
type Status int

const (
	Unknown Status = iota
	Successful
	Redirect
	ClientError
	ServerError

	// ConnectionError means no response was received.
	ConnectionError
	// IOError means reading the body failed.
	IOError
	// ProcessError means the body could not be interpreted as promised.
	ProcessError
)

var statusNames = [...]string{
	Unknown:         "Unknown",
	Successful:      "Successful",
	Redirect:        "Redirect",
	ClientError:     "ClientError",
	ServerError:     "ServerError",
	ConnectionError: "ConnectionError",
	IOError:         "IOError",
	ProcessError:    "ProcessError",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

// FromCode derives the status of an HTTP status code.
func FromCode(code int) Status {
	switch {
	case code >= 500:
		return ServerError
	case code >= 400:
		return ClientError
	case code >= 300:
		return Redirect
	case code >= 200:
		return Successful
	default:
		return Unknown
	}
}

// Local reports whether s was determined by this client rather than reported
// by the server.
func (s Status) Local() bool {
	return s == ConnectionError || s == IOError || s == ProcessError
}
