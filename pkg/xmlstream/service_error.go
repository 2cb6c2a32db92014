package xmlstream

import (
	"fmt"
	"strconv"
	"strings"
)

// Reserved names of the server's error envelope:
//
//	<error id="1A2B"><message>bad input</message></error>
const (
	ErrorElement   = "error"
	MessageElement = "message"
	IDAttribute    = "id"
)

// NoID is the ID of a service error whose id attribute was absent or not
// hexadecimal.
const NoID = -1

// ServiceError is an application-level error reported in the body of an
// otherwise successful exchange.
type ServiceError struct {
	ID      int
	Message string
}

// ParseID parses a hexadecimal error ID, returning NoID when s is not valid.
func ParseID(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoID
	}
	id, err := strconv.ParseUint(s, 16, 31)
	if err != nil {
		return NoID
	}
	return int(id)
}

// Code renders the ID as upper-case hexadecimal, zero-padded to 4 digits.
// It returns "" for NoID.
func (e *ServiceError) Code() string {
	if e == nil || e.ID < 0 {
		return ""
	}
	return fmt.Sprintf("%04X", e.ID)
}

// HasID reports whether the envelope carried a usable id attribute.
func (e *ServiceError) HasID() bool {
	return e != nil && e.ID >= 0
}

func (e *ServiceError) String() string {
	if e == nil {
		return "<no error>"
	}
	return "[0x" + e.Code() + "]" + e.Message
}
