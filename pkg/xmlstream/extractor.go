package xmlstream

import (
	"encoding/xml"
	"strings"
)

// ErrorExtractor captures the ID and message of an error envelope. It is
// meant for a single document.
type ErrorExtractor struct {
	BaseHandler

	rooted    bool
	inMessage bool
	text      strings.Builder
	result    *ServiceError
}

// StartElement records the id attribute of the root error element and starts
// buffering text when the message element opens.
func (x *ErrorExtractor) StartElement(start xml.StartElement) error {
	root := !x.rooted
	x.rooted = true

	switch {
	case root && start.Name.Local == ErrorElement:
		x.result = &ServiceError{ID: NoID}
		for _, a := range start.Attr {
			if a.Name.Local == IDAttribute && a.Name.Space == "" {
				x.result.ID = ParseID(a.Value)
			}
		}
	case x.result != nil && start.Name.Local == MessageElement:
		x.inMessage = true
		x.text.Reset()
	}
	return nil
}

func (x *ErrorExtractor) CharData(data xml.CharData) error {
	if x.inMessage {
		x.text.Write(data)
	}
	return nil
}

func (x *ErrorExtractor) EndElement(end xml.EndElement) error {
	if x.inMessage && end.Name.Local == MessageElement {
		x.inMessage = false
		x.result.Message = strings.TrimSpace(x.text.String())
	}
	return nil
}

// Result returns the extracted error, or nil if the document root was not
// an error envelope.
func (x *ErrorExtractor) Result() *ServiceError {
	return x.result
}
