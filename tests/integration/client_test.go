//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/record-pager/internal/testutil"
	"github.com/Sternrassler/record-pager/pkg/cache"
	"github.com/Sternrassler/record-pager/pkg/client"
	"github.com/Sternrassler/record-pager/pkg/dispatch"
	"github.com/Sternrassler/record-pager/pkg/loader"
	"github.com/Sternrassler/record-pager/pkg/pagination"
	"github.com/Sternrassler/record-pager/pkg/ratelimit"
	"github.com/Sternrassler/record-pager/pkg/records"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// countingTransport counts the round trips that reach the mock API.
type countingTransport struct {
	trips atomic.Int64
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.trips.Add(1)
	return http.DefaultTransport.RoundTrip(req)
}

func seedTickets(t *testing.T, api *testutil.MockRecordAPI, n int) {
	t.Helper()

	station := uuid.New()
	tickets := make([]*records.Ticket, n)
	for i := range tickets {
		tickets[i] = records.NewTicket(fmt.Sprintf("T-%03d", i+1), fmt.Sprintf("Ticket %d", i+1), station)
	}
	if err := api.SetCollection("tickets", tickets); err != nil {
		t.Fatal(err)
	}
}

// newSession builds a view over the shared Redis tier, as one client session would.
func newSession(t *testing.T, fetcher pagination.Fetcher[*records.Ticket]) *loader.View[*records.Ticket] {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	loop := dispatch.NewLoop()
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Stopped()
	})

	var l *loader.Loader[*records.Ticket]
	if err := loop.Do(ctx, func() {
		ctrl := pagination.NewController(loop, pagination.DefaultOptions())
		l = loader.New(ctx, loop, ctrl, fetcher, loader.Config[*records.Ticket]{
			Name:  "integration",
			Equal: (*records.Ticket).Equal,
		})
	}); err != nil {
		t.Fatalf("loop.Do() error = %v", err)
	}
	return loader.NewView(loop, l)
}

func newClient(t *testing.T, api *testutil.MockRecordAPI) (*client.Client, *countingTransport) {
	t.Helper()

	cfg := client.DefaultConfig(api.URL(), "TestApp/1.0.0 (integration@test.com)")
	cfg.Retry = func(client.ErrorClass) client.RetryConfig {
		return client.RetryConfig{MaxAttempts: 3, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond, BackoffMultiplier: 2}
	}
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	transport := &countingTransport{}
	c.SetHTTPClient(&http.Client{Transport: transport, Timeout: 10 * time.Second})
	return c, transport
}

// TestFullPagingFlow pages through a remote collection: record API → Redis tier → loader → view.
func TestFullPagingFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	api := testutil.NewMockRecordAPI()
	defer api.Close()
	seedTickets(t, api, 47)

	c, transport := newClient(t, api)
	fetcher := cache.NewCachingFetcher[*records.Ticket](client.NewPageSource[records.Ticket](c, "tickets"), cache.NewManager(redisClient), "tickets", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Session 1 reads everything from the API.
	first := newSession(t, fetcher)
	if err := first.QueryAll(ctx); err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}
	if ok, err := first.Next(ctx); err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}

	page, err := first.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if page.State.CurrentPage != 2 || page.State.TotalPages != 2 || len(page.Items) != 22 {
		t.Fatalf("page 2 = %+v with %d items", page.State, len(page.Items))
	}
	if page.Items[0].Number != "T-026" {
		t.Errorf("page 2 starts at %s, want T-026", page.Items[0].Number)
	}

	apiTrips := transport.trips.Load()
	if apiTrips == 0 {
		t.Fatal("no requests reached the API")
	}

	// Session 2 is served from Redis.
	second := newSession(t, fetcher)
	if err := second.QueryAll(ctx); err != nil {
		t.Fatalf("second QueryAll() error = %v", err)
	}
	if _, err := second.Last(ctx); err != nil {
		t.Fatalf("second Last() error = %v", err)
	}
	if got := transport.trips.Load(); got != apiTrips {
		t.Errorf("second session made %d API requests, want 0", got-apiTrips)
	}

	items, err := second.Items(ctx)
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	if len(items) != 22 || items[21].Number != "T-047" {
		t.Errorf("cached page 2 ends at %s (len %d)", items[len(items)-1].Number, len(items))
	}
}

// TestTransientFailuresAreRetried checks that server errors below the retry limit never reach the view.
func TestTransientFailuresAreRetried(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	api := testutil.NewMockRecordAPI()
	defer api.Close()
	seedTickets(t, api, 10)

	c, _ := newClient(t, api)
	fetcher := cache.NewCachingFetcher[*records.Ticket](client.NewPageSource[records.Ticket](c, "tickets"), cache.NewManager(redisClient), "tickets", time.Minute)

	api.FailNext(testutil.NewServerErrorResponse(), testutil.NewRateLimitResponse())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	view := newSession(t, fetcher)
	if err := view.QueryAll(ctx); err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}

	s, err := view.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if s.TotalItems != 10 || !s.Initialized {
		t.Errorf("State() = %+v", s)
	}
}

// TestMissingCollection surfaces a 404 as a failed query without retries.
func TestMissingCollection(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	api := testutil.NewMockRecordAPI()
	defer api.Close()

	c, transport := newClient(t, api)
	fetcher := cache.NewCachingFetcher[*records.Ticket](client.NewPageSource[records.Ticket](c, "tickets"), cache.NewManager(redisClient), "tickets", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	view := newSession(t, fetcher)
	err := view.QueryAll(ctx)

	var fe *loader.FetchError
	if !errors.As(err, &fe) || fe.Op != "count" {
		t.Fatalf("QueryAll() error = %v, want count FetchError", err)
	}
	if got := transport.trips.Load(); got != 1 {
		t.Errorf("API requests = %d, want 1", got)
	}
}

// TestSharedQuotaBlocksOtherClients checks that a quota reported to one client stops another sharing the same Redis.
func TestSharedQuotaBlocksOtherClients(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	api := testutil.NewMockRecordAPI()
	defer api.Close()
	seedTickets(t, api, 10)
	api.SetQuota(2, 60)

	gated := func() (*client.Client, *countingTransport) {
		transport := &countingTransport{}
		cfg := client.DefaultConfig(api.URL(), "TestApp/1.0.0 (integration@test.com)")
		cfg.Retry = func(client.ErrorClass) client.RetryConfig {
			return client.RetryConfig{MaxAttempts: 2, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 10 * time.Millisecond, BackoffMultiplier: 2}
		}
		cfg.Gate = ratelimit.NewTracker(redisClient, zerolog.Nop())
		c, err := client.New(cfg)
		if err != nil {
			t.Fatal(err)
		}
		c.SetHTTPClient(&http.Client{Transport: transport, Timeout: 10 * time.Second})
		return c, transport
	}

	ctx := context.Background()

	first, _ := gated()
	if _, err := client.NewPageSource[records.Ticket](first, "tickets").Count(ctx); err != nil {
		t.Fatalf("first Count() error = %v", err)
	}

	second, transport := gated()
	_, err := client.NewPageSource[records.Ticket](second, "tickets").FetchPage(ctx, 1, 10)
	if !errors.Is(err, client.ErrRateLimited) {
		t.Fatalf("second FetchPage() error = %v, want ErrRateLimited", err)
	}
	if got := transport.trips.Load(); got != 0 {
		t.Errorf("blocked client sent %d requests", got)
	}
}
