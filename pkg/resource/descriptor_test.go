package resource

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDescriptor_URL(t *testing.T) {
	base := mustParse(t, "https://cms.example.com/ps/")

	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{
			name: "relative path",
			d:    Get("/service/groups/acme"),
			want: "https://cms.example.com/ps/service/groups/acme",
		},
		{
			name: "query parameters",
			d:    Get("service/search", Parameter{"term", "a b"}, Parameter{"page", "2"}),
			want: "https://cms.example.com/ps/service/search?page=2&term=a+b",
		},
		{
			name: "repeated parameter",
			d:    Get("service/x").With("tag", "a").With("tag", "b"),
			want: "https://cms.example.com/ps/service/x?tag=a&tag=b",
		},
		{
			name: "path query kept",
			d:    Get("service/x?v=3").With("q", "1"),
			want: "https://cms.example.com/ps/service/x?q=1&v=3",
		},
		{
			name: "absolute url",
			d:    Get("http://other.example.com/feed"),
			want: "http://other.example.com/feed",
		},
		{
			name: "post parameters stay out of the url",
			d:    Post("service/login", Parameter{"user", "u"}),
			want: "https://cms.example.com/ps/service/login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := tt.d.URL(base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestDescriptor_Immutable(t *testing.T) {
	d := Get("service/x", Parameter{"a", "1"})
	d2 := d.With("b", "2").WithHeader("X-Trace", "t").WithErrorContent().WithTimeout(time.Second)

	assert.Len(t, d.Parameters, 1)
	assert.Nil(t, d.Header)
	assert.False(t, d.IncludeErrorContent)
	assert.Zero(t, d.Timeout)

	assert.Len(t, d2.Parameters, 2)
	assert.True(t, d2.Has("b"))
	assert.False(t, d.Has("b"))
	assert.Equal(t, "t", d2.Header.Get("X-Trace"))
}

func TestDescriptor_Request(t *testing.T) {
	base := mustParse(t, "https://cms.example.com/ps")
	ctx := context.Background()

	t.Run("form body", func(t *testing.T) {
		req, err := Post("service/login", Parameter{"user", "u"}, Parameter{"pass", "p w"}).Request(ctx, base)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, FormContentType, req.Header.Get("Content-Type"))
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, "pass=p+w&user=u", string(body))
	})

	t.Run("explicit body keeps parameters in the query", func(t *testing.T) {
		d := Post("service/upload", Parameter{"folder", "f"}).
			WithBody("application/xml", []byte("<doc/>"))
		req, err := d.Request(ctx, base)
		require.NoError(t, err)

		assert.Equal(t, "folder=f", req.URL.RawQuery)
		assert.Equal(t, "application/xml", req.Header.Get("Content-Type"))
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, "<doc/>", string(body))
	})

	t.Run("headers copied", func(t *testing.T) {
		req, err := Get("service/x").WithHeader("Accept", "application/xml").Request(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, "application/xml", req.Header.Get("Accept"))
		assert.Nil(t, req.Body)
	})
}

func TestCredentials(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	UsernamePassword{Username: "jane", Password: "secret"}.Authorize(req)
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "jane", user)
	assert.Equal(t, "secret", pass)

	Token("tok").Authorize(req)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
}
