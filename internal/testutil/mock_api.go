// Package testutil provides test doubles for record sources.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for a mock API path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockRecordAPI is an httptest server speaking the remote page protocol:
// GET /{collection}?page=N&page_size=M returns a JSON array with X-Total-Count,
// HEAD /{collection} returns only the header.
type MockRecordAPI struct {
	server *httptest.Server

	mu          sync.RWMutex
	collections map[string][]json.RawMessage
	handlers    map[string]func(w http.ResponseWriter, r *http.Request)
	failures    []MockResponse
	headAllowed bool
	quota       *[2]int

	// Tracking
	RequestCount      int
	HeadCount         int
	LastRequestHeader http.Header
}

// NewMockRecordAPI starts a mock record API.
func NewMockRecordAPI() *MockRecordAPI {
	mock := &MockRecordAPI{
		collections: make(map[string][]json.RawMessage),
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
		headAllowed: true,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		if r.Method == http.MethodHead {
			mock.HeadCount++
		}
		mock.LastRequestHeader = r.Header.Clone()

		var failure *MockResponse
		if len(mock.failures) > 0 {
			f := mock.failures[0]
			mock.failures = mock.failures[1:]
			failure = &f
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if failure != nil {
			writeResponse(w, *failure)
			return
		}
		if exists {
			handler(w, r)
			return
		}
		mock.serveCollection(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockRecordAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRecordAPI) Close() {
	m.server.Close()
}

// SetCollection serves items, which must marshal to a JSON array, under /{name}.
func (m *MockRecordAPI) SetCollection(name string, items any) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s is not a JSON array: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = raw
	return nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockRecordAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockRecordAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// FailNext answers the next requests with resps, one each, before serving normally.
func (m *MockRecordAPI) FailNext(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, resps...)
}

// DisableHead makes HEAD requests answer 405 Method Not Allowed.
func (m *MockRecordAPI) DisableHead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headAllowed = false
}

// SetQuota makes collection responses report remaining requests and the
// seconds until the quota window resets.
func (m *MockRecordAPI) SetQuota(remaining, resetSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota = &[2]int{remaining, resetSeconds}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockRecordAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetHeadCount returns the number of HEAD requests.
func (m *MockRecordAPI) GetHeadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HeadCount
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockRecordAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (m *MockRecordAPI) serveCollection(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.URL.Path, "/")

	m.mu.RLock()
	items, ok := m.collections[name]
	headAllowed := m.headAllowed
	quota := m.quota
	m.mu.RUnlock()

	if !ok {
		http.Error(w, `{"error": "unknown collection"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	if quota != nil {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(quota[0]))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(quota[1]))
	}

	switch r.Method {
	case http.MethodHead:
		if !headAllowed {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	page, err1 := strconv.Atoi(r.URL.Query().Get("page"))
	size, err2 := strconv.Atoi(r.URL.Query().Get("page_size"))
	if err1 != nil || err2 != nil || page < 1 || size < 1 {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "page and page_size must be positive integers"}`))
		return
	}

	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))

	body, _ := json.Marshal(items[start:end])
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8", "Retry-After": "1"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
