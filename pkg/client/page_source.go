package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// PageSource fetches pages of one collection from the record API.
// It implements pagination.Fetcher[*T].
type PageSource[T any] struct {
	client     *Client
	collection string
	filter     url.Values
}

// NewPageSource creates a page source for collection.
func NewPageSource[T any](client *Client, collection string) *PageSource[T] {
	return &PageSource[T]{client: client, collection: collection}
}

// WithFilter returns a copy that sends filter with every request.
func (s *PageSource[T]) WithFilter(filter url.Values) *PageSource[T] {
	c := *s
	c.filter = url.Values{}
	for k, v := range filter {
		c.filter[k] = append([]string(nil), v...)
	}
	return &c
}

// FetchPage returns the records of page.
func (s *PageSource[T]) FetchPage(ctx context.Context, page, pageSize int) ([]*T, error) {
	items, _, err := s.get(ctx, page, pageSize)
	return items, err
}

// Count returns the collection's total from a HEAD request, falling back to a
// one-record page when the server does not answer HEAD with a total.
func (s *PageSource[T]) Count(ctx context.Context) (int, error) {
	if len(s.filter) == 0 {
		resp, err := s.client.Head(ctx, s.collection)
		if err == nil {
			resp.Body.Close()
			if total, err := parseTotal(resp.Header); err == nil {
				return total, nil
			}
		} else {
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusMethodNotAllowed {
				return 0, err
			}
		}
	}

	_, total, err := s.get(ctx, 1, 1)
	if err != nil {
		return 0, err
	}
	if total < 0 {
		return 0, ErrMissingTotal
	}
	return total, nil
}

// get fetches a page and reports the total, or -1 if the response has none.
func (s *PageSource[T]) get(ctx context.Context, page, pageSize int) ([]*T, int, error) {
	query := url.Values{}
	for k, v := range s.filter {
		query[k] = v
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	resp, err := s.client.Get(ctx, s.collection, query)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var items []*T
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&items); err != nil {
		return nil, 0, fmt.Errorf("decode %s page %d: %w", s.collection, page, err)
	}

	total, err := parseTotal(resp.Header)
	if err != nil {
		total = -1
	}
	if items == nil {
		items = []*T{}
	}
	return items, total, nil
}
