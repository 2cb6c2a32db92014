package xmlstream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain",
			in:   contentBody,
			want: contentBody,
		},
		{
			name: "attributes and escaping",
			in:   `<page title="a &amp; b"><p>1 &lt; 2</p></page>`,
			want: `<page title="a &amp; b"><p>1 &lt; 2</p></page>`,
		},
		{
			name: "namespaces keep their prefixes",
			in:   `<ps:doc xmlns:ps="urn:ps" xmlns="urn:default"><child ps:ref="7">x</child></ps:doc>`,
			want: `<ps:doc xmlns:ps="urn:ps" xmlns="urn:default"><child ps:ref="7">x</child></ps:doc>`,
		},
		{
			name: "xml namespace",
			in:   `<doc xml:lang="en">hi</doc>`,
			want: `<doc xml:lang="en">hi</doc>`,
		},
		{
			name: "self closing becomes a pair",
			in:   `<doc><empty/></doc>`,
			want: `<doc><empty></empty></doc>`,
		},
		{
			name: "comments and instructions",
			in:   `<?xml version="1.0"?><!--top--><doc><?render fast?></doc>`,
			want: `<!--top--><doc><?render fast?></doc>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			_, err := Dispatch(strings.NewReader(tt.in), NewCopy(&out), Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, assert.AnError }

func TestCopy_WriteErrorIsSticky(t *testing.T) {
	c := NewCopy(brokenWriter{})

	_, err := Dispatch(strings.NewReader(contentBody), c, Options{})
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, c.EndDocument(), assert.AnError)
}
