//go:build integration

package integration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/storefront-client/internal/testutil"
	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/cart"
	"github.com/Sternrassler/storefront-client/pkg/checkout"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/errlog"
	"github.com/Sternrassler/storefront-client/pkg/offline"
	"github.com/Sternrassler/storefront-client/pkg/ratelimit"
	"github.com/Sternrassler/storefront-client/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
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

// flakyTransport fails every request while offline is set.
type flakyTransport struct {
	offline atomic.Bool
}

func (t *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.offline.Load() {
		return nil, errors.New("dial tcp: network is unreachable")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func newSite() *testutil.MockAPI {
	site := testutil.NewMockAPI()
	site.SetResponse("/", testutil.NewDocumentResponse("<html>root</html>"))
	site.SetResponse("/index.html", testutil.NewDocumentResponse("<html>index</html>"))
	site.SetResponse("/favicon.svg", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<svg/>",
		Headers:    map[string]string{"Content-Type": "image/svg+xml"},
	})
	site.SetResponse("/assets/app.js", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "console.log('app')",
		Headers:    map[string]string{"Content-Type": "text/javascript"},
	})
	site.SetJSON("/api/shop/products/", http.StatusOK, []map[string]any{{"id": 1, "name": "LUT Pack"}})
	return site
}

func get(t *testing.T, ctrl *offline.Controller, url string, header ...string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return ctrl.Handle(req)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(data)
}

// TestOfflineFlow covers install → online browsing → offline browsing.
func TestOfflineFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	site := newSite()
	defer site.Close()

	store, err := cache.NewStorage(redisClient, cache.DefaultPrefix)
	if err != nil {
		t.Fatalf("Failed to create cache storage: %v", err)
	}

	transport := &flakyTransport{}
	ctrl, err := offline.New(
		offline.DefaultConfig(site.URL()),
		store,
		offline.WithTransport(transport),
		offline.WithLogger(zerolog.Nop()),
	)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Failed to start controller: %v", err)
	}
	if !ctrl.Controlling() {
		t.Fatal("Expected controller to be controlling after start")
	}

	// Online: an asset is fetched once and cached.
	resp, err := get(t, ctrl, site.URL()+"/assets/app.js")
	if err != nil {
		t.Fatalf("Online asset request failed: %v", err)
	}
	readAll(t, resp)

	transport.offline.Store(true)

	t.Run("cached_asset", func(t *testing.T) {
		resp, err := get(t, ctrl, site.URL()+"/assets/app.js")
		if err != nil {
			t.Fatalf("Expected cached asset, got error: %v", err)
		}
		if body := readAll(t, resp); body != "console.log('app')" {
			t.Errorf("Unexpected cached body: %s", body)
		}
	})

	t.Run("navigation_fallback", func(t *testing.T) {
		resp, err := get(t, ctrl, site.URL()+"/shop/lut-pack", "Accept", "text/html,application/xhtml+xml")
		if err != nil {
			t.Fatalf("Expected root fallback, got error: %v", err)
		}
		if body := readAll(t, resp); body != "<html>root</html>" {
			t.Errorf("Expected cached root document, got %s", body)
		}
	})

	t.Run("api_unavailable", func(t *testing.T) {
		resp, err := get(t, ctrl, site.URL()+"/api/shop/products/")
		if err != nil {
			t.Fatalf("Expected synthesized response, got error: %v", err)
		}
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
		if body := readAll(t, resp); body != `{"error":"Offline - API unavailable"}` {
			t.Errorf("Unexpected offline body: %s", body)
		}
	})

	t.Run("uncached_subresource", func(t *testing.T) {
		_, err := get(t, ctrl, site.URL()+"/assets/never-seen.js")
		if !errors.Is(err, offline.ErrOffline) {
			t.Errorf("Expected ErrOffline, got %v", err)
		}
	})
}

// TestCacheVersionUpgrade verifies that activating a new version removes
// the previous version's partitions.
func TestCacheVersionUpgrade(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	site := newSite()
	defer site.Close()

	ctx := context.Background()
	store, err := cache.NewStorage(redisClient, cache.DefaultPrefix)
	if err != nil {
		t.Fatalf("Failed to create cache storage: %v", err)
	}

	for _, version := range []string{"v1", "v2"} {
		cfg := offline.DefaultConfig(site.URL())
		cfg.Version = version

		ctrl, err := offline.New(cfg, store, offline.WithLogger(zerolog.Nop()))
		if err != nil {
			t.Fatalf("Failed to create controller %s: %v", version, err)
		}
		if err := ctrl.Start(ctx); err != nil {
			t.Fatalf("Failed to start controller %s: %v", version, err)
		}
		if version == "v1" {
			resp, err := get(t, ctrl, site.URL()+"/assets/app.js")
			if err != nil {
				t.Fatalf("Asset request failed: %v", err)
			}
			readAll(t, resp)
		}
	}

	names, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Failed to list partitions: %v", err)
	}
	want := map[string]bool{"kodeen-static-v2": true, "kodeen-dynamic-v2": true}
	if len(names) != len(want) {
		t.Fatalf("Expected only v2 partitions, got %v", names)
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("Unexpected partition %s", name)
		}
	}
}

// TestCartPersistence verifies the cart survives a restart.
func TestCartPersistence(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	kv := storage.NewRedisKV(redisClient, storage.DefaultPrefix)

	first := cart.New(ctx, kv, nil, cart.WithLogger(zerolog.Nop()))
	first.AddItem(ctx, cart.Product{ID: 1, Name: "LUT Pack", UnitPrice: 19.99})
	first.AddItem(ctx, cart.Product{ID: 1, Name: "LUT Pack", UnitPrice: 19.99})
	first.AddItem(ctx, cart.Product{ID: 2, Name: "Presets", UnitPrice: 5.5})

	second := cart.New(ctx, kv, nil, cart.WithLogger(zerolog.Nop()))
	if second.ItemCount() != 3 {
		t.Errorf("Expected 3 items after restart, got %d", second.ItemCount())
	}
	if total := second.Total(); total < 45.479999 || total > 45.480001 {
		t.Errorf("Expected total 45.48, got %v", total)
	}

	second.Clear(ctx)
	third := cart.New(ctx, kv, nil, cart.WithLogger(zerolog.Nop()))
	if third.ItemCount() != 0 {
		t.Errorf("Expected empty cart after clear, got %d", third.ItemCount())
	}
}

// TestCheckoutFlow runs a checkout against the mock API with real Redis:
// a failed order is retried with the same idempotency key and then succeeds.
func TestCheckoutFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetSequence("/api/shop/orders/",
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewJSONResponse(`{"order": {"id": 7, "order_number": "ORD-2024-0007"}}`),
	)

	ctx := context.Background()
	kv := storage.NewRedisKV(redisClient, storage.DefaultPrefix)
	errorLog := errlog.New(kv, "https://kodeenhunter.com", "storefront-test/1.0", zerolog.Nop())

	cfg := client.DefaultConfig(api.URL(), "storefront-test/1.0")
	cfg.BaseBackoff = 10 * time.Millisecond
	cfg.ErrorLog = errorLog
	apiClient, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	store := cart.New(ctx, kv, apiClient, cart.WithLogger(zerolog.Nop()))
	store.AddItem(ctx, cart.Product{ID: 1, Name: "LUT Pack", UnitPrice: 19.99})

	session := checkout.NewSession(store,
		checkout.WithLimiter(ratelimit.NewLimiter(redisClient, zerolog.Nop())),
		checkout.WithLogger(zerolog.Nop()),
	)
	session.Open()
	if err := session.SubmitInfo(checkout.CustomerInfo{Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("SubmitInfo failed: %v", err)
	}

	// First attempt exhausts the three retries.
	if err := session.PlaceOrder(ctx); !errors.Is(err, client.ErrRetryExhausted) {
		t.Fatalf("Expected exhausted retries, got %v", err)
	}
	firstKey := api.LastHeader().Get("Idempotency-Key")
	if store.ItemCount() != 1 {
		t.Errorf("Expected cart untouched after failure, got %d items", store.ItemCount())
	}
	if records := errorLog.Records(ctx); len(records) != 1 {
		t.Errorf("Expected 1 error record, got %d", len(records))
	}

	// Second attempt succeeds.
	if err := session.PlaceOrder(ctx); err != nil {
		t.Fatalf("Expected order to succeed, got %v", err)
	}
	if got := api.LastHeader().Get("Idempotency-Key"); got == "" || got != firstKey {
		t.Errorf("Expected retry to reuse idempotency key %q, got %q", firstKey, got)
	}

	view := session.View()
	if view.Step != checkout.StepSuccess || view.OrderNumber != "ORD-2024-0007" {
		t.Errorf("Expected success with ORD-2024-0007, got %s %q", view.Step, view.OrderNumber)
	}
	if store.ItemCount() != 0 {
		t.Errorf("Expected empty cart after order, got %d items", store.ItemCount())
	}
	if api.PathCount("/api/shop/orders/") != 4 {
		t.Errorf("Expected 4 order calls, got %d", api.PathCount("/api/shop/orders/"))
	}
}

// TestCheckoutRateLimitShared verifies order attempts are bounded across
// sessions sharing one Redis.
func TestCheckoutRateLimitShared(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetResponse("/api/shop/orders/", testutil.NewBadRequestResponse("Product unavailable"))

	ctx := context.Background()
	kv := storage.NewRedisKV(redisClient, storage.DefaultPrefix)
	apiClient, err := client.New(client.DefaultConfig(api.URL(), "storefront-test/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	store := cart.New(ctx, kv, apiClient, cart.WithLogger(zerolog.Nop()))
	store.AddItem(ctx, cart.Product{ID: 1, Name: "LUT Pack", UnitPrice: 19.99})

	var limited int
	for i := 0; i < ratelimit.CheckoutMaxAttempts+2; i++ {
		session := checkout.NewSession(store,
			checkout.WithLimiter(ratelimit.NewLimiter(redisClient, zerolog.Nop())),
			checkout.WithLogger(zerolog.Nop()),
		)
		session.Open()
		if err := session.SubmitInfo(checkout.CustomerInfo{Name: "Ada", Email: "ada@example.com"}); err != nil {
			t.Fatalf("SubmitInfo failed: %v", err)
		}
		if err := session.PlaceOrder(ctx); errors.Is(err, checkout.ErrRateLimited) {
			limited++
		}
	}

	if limited != 2 {
		t.Errorf("Expected 2 rate-limited attempts, got %d", limited)
	}
	if api.PathCount("/api/shop/orders/") != ratelimit.CheckoutMaxAttempts {
		t.Errorf("Expected %d order calls, got %d", ratelimit.CheckoutMaxAttempts, api.PathCount("/api/shop/orders/"))
	}
}
