package client

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/ps-bridge/pkg/resource"
	"github.com/Sternrassler/ps-bridge/pkg/response"
	"github.com/Sternrassler/ps-bridge/pkg/xmlstream"
)

const (
	// TotalPagesElement carries the page count of a paged search result.
	TotalPagesElement = "totalpages"

	// DefaultPageParam selects the page of a paged search, starting at 1.
	DefaultPageParam = "page"
)

// PageFetcher fetches single pages of a paged search through the cache-aware
// Get. It satisfies pagination.PageFetcher.
type PageFetcher[T any] struct {
	client    *Client
	desc      resource.Descriptor
	creds     resource.Credentials
	items     xmlstream.StreamHandler[T]
	PageParam string
}

// NewPageFetcher returns a fetcher for the search described by d whose items
// are read with items.
func NewPageFetcher[T any](c *Client, d resource.Descriptor, creds resource.Credentials, items xmlstream.StreamHandler[T]) *PageFetcher[T] {
	return &PageFetcher[T]{
		client:    c,
		desc:      d,
		creds:     creds,
		items:     items,
		PageParam: DefaultPageParam,
	}
}

// FetchPage returns the items of page and the total page count, which is 1
// when the result does not state it. An error envelope is returned as an
// error wrapping ErrServiceError.
func (p *PageFetcher[T]) FetchPage(ctx context.Context, page int) ([]T, int, error) {
	r := p.client.Get(ctx, p.desc.With(p.PageParam, strconv.Itoa(page)), p.creds)
	defer r.Close()

	if err := r.Err(); err != nil {
		return nil, 0, err
	}

	parts, err := response.ConsumeStreaming[pagePart[T]](r, pageHandler[T]{items: p.items})
	if err != nil {
		return nil, 0, err
	}
	if se, _ := r.ServiceError(); se != nil {
		return nil, 0, fmt.Errorf("%w: page %d: %s", ErrServiceError, page, se)
	}

	total := 1
	items := make([]T, 0, len(parts))
	for _, part := range parts {
		if part.total > 0 {
			total = part.total
			continue
		}
		items = append(items, part.item)
	}
	return items, total, nil
}

// pagePart is either an item or the page count.
type pagePart[T any] struct {
	item  T
	total int
}

type pageHandler[T any] struct {
	items xmlstream.StreamHandler[T]
}

func (h pageHandler[T]) Ready(start xml.StartElement) bool {
	return start.Name.Local == TotalPagesElement || h.items.Ready(start)
}

func (h pageHandler[T]) Item(d *xml.Decoder, start xml.StartElement) (pagePart[T], error) {
	if start.Name.Local != TotalPagesElement {
		item, err := h.items.Item(d, start)
		return pagePart[T]{item: item}, err
	}

	var text string
	if err := d.DecodeElement(&text, &start); err != nil {
		return pagePart[T]{}, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 {
		return pagePart[T]{}, fmt.Errorf("invalid %s %q", TotalPagesElement, text)
	}
	return pagePart[T]{total: n}, nil
}
