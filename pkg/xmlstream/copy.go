package xmlstream

import (
	"bufio"
	"encoding/xml"
	"io"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// Copy re-serializes the events it receives to a writer, preserving element
// names, namespace prefixes, attributes, text, comments and processing
// instructions. Self-closing elements are written as start/end pairs.
//
// encoding/xml's Encoder is not used: it rewrites namespace prefixes of
// decoded tokens.
type Copy struct {
	w *bufio.Writer

	// scopes maps namespace URLs to prefixes, one map per open element.
	scopes []map[string]string
	names  []string
	err    error
}

// NewCopy returns a Copy writing to w. The output is flushed by EndDocument.
func NewCopy(w io.Writer) *Copy {
	return &Copy{w: bufio.NewWriter(w)}
}

func (c *Copy) StartDocument() error {
	return c.err
}

func (c *Copy) StartElement(start xml.StartElement) error {
	scope := map[string]string{}
	for _, a := range start.Attr {
		switch {
		case a.Name.Space == "xmlns":
			scope[a.Value] = a.Name.Local
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			scope[a.Value] = ""
		}
	}
	c.scopes = append(c.scopes, scope)

	name := c.qualify(start.Name, true)
	c.names = append(c.names, name)

	c.write("<", name)
	for _, a := range start.Attr {
		c.write(" ", c.attrName(a.Name), `="`)
		c.escape(a.Value)
		c.write(`"`)
	}
	c.write(">")
	return c.err
}

func (c *Copy) EndElement(xml.EndElement) error {
	if n := len(c.names); n > 0 {
		c.write("</", c.names[n-1], ">")
		c.names = c.names[:n-1]
		c.scopes = c.scopes[:n-1]
	}
	return c.err
}

func (c *Copy) CharData(data xml.CharData) error {
	if c.err == nil {
		c.err = xml.EscapeText(c.w, data)
	}
	return c.err
}

func (c *Copy) Comment(comment xml.Comment) error {
	c.write("<!--", string(comment), "-->")
	return c.err
}

func (c *Copy) ProcInst(p xml.ProcInst) error {
	c.write("<?", p.Target)
	if len(p.Inst) > 0 {
		c.write(" ", string(p.Inst))
	}
	c.write("?>")
	return c.err
}

func (c *Copy) EndDocument() error {
	if c.err == nil {
		c.err = c.w.Flush()
	}
	return c.err
}

func (c *Copy) write(parts ...string) {
	for _, p := range parts {
		if c.err != nil {
			return
		}
		_, c.err = c.w.WriteString(p)
	}
}

func (c *Copy) escape(s string) {
	if c.err == nil {
		c.err = xml.EscapeText(c.w, []byte(s))
	}
}

// qualify turns a resolved name back into its prefixed form. Elements may
// use the default namespace, attributes never do.
func (c *Copy) qualify(n xml.Name, element bool) string {
	if n.Space == "" {
		return n.Local
	}
	if n.Space == xmlNamespace {
		return "xml:" + n.Local
	}
	for i := len(c.scopes) - 1; i >= 0; i-- {
		prefix, ok := c.scopes[i][n.Space]
		if !ok {
			continue
		}
		if prefix == "" {
			if element {
				return n.Local
			}
			continue
		}
		return prefix + ":" + n.Local
	}
	// Unbound prefix: the decoder leaves it in Space.
	return n.Space + ":" + n.Local
}

func (c *Copy) attrName(n xml.Name) string {
	switch {
	case n.Space == "xmlns":
		return "xmlns:" + n.Local
	case n.Space == "" && n.Local == "xmlns":
		return "xmlns"
	default:
		return c.qualify(n, false)
	}
}
