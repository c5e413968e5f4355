package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.entries[key]
	return body, ok
}

func (m *memoryCache) Set(_ context.Context, key string, body []byte, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = body
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{BaseURL: server.URL + "/", Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "://bad"} {
		if _, err := New(Config{BaseURL: raw}); err == nil {
			t.Errorf("New(%q) error = nil, want error", raw)
		}
	}
}

func TestRequestHeaders(t *testing.T) {
	var gotAuth, gotRequestID, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","name":"Kava","table_config":{"two_tables":2,"four_tables":1}}`))
	}, func(cfg *Config) {
		cfg.Token = func(context.Context) (string, error) { return "id-token", nil }
	})

	cafe, err := client.GetCafe(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetCafe() error = %v", err)
	}
	if gotPath != "/cafes/c1" {
		t.Errorf("path = %q, want /cafes/c1", gotPath)
	}
	if gotAuth != "Bearer id-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotRequestID == "" {
		t.Error("X-Request-ID header missing")
	}
	if cafe.Layout().Counts == nil || cafe.Layout().Counts.Two != 2 {
		t.Errorf("layout = %+v, want summary counts", cafe.Layout())
	}
}

func TestTokenSourceError(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, func(cfg *Config) {
		cfg.Token = func(context.Context) (string, error) { return "", errors.New("session expired") }
	})

	if _, err := client.GetUser(context.Background(), "u1"); err == nil {
		t.Fatal("GetUser() error = nil, want token error")
	}
	if called {
		t.Error("request should not be sent without a token")
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		notFound   bool
	}{
		{"not found", http.StatusNotFound, `{"detail":"Cafe not found"}`, "Cafe not found", true},
		{"validation", http.StatusUnprocessableEntity, `{"detail":[{"msg":"party_size must be <= 10"}]}`, "party_size must be <= 10", false},
		{"plain text", http.StatusInternalServerError, "boom", "boom", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, nil)

			_, err := client.GetCafeByOwner(context.Background(), "owner-1")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Detail != tt.wantDetail {
				t.Errorf("APIError = %+v, want status %d detail %q", apiErr, tt.status, tt.wantDetail)
			}
			if IsNotFound(err) != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", IsNotFound(err), tt.notFound)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New(Config{BaseURL: url, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.ListCafes(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if ErrorMessage(err) != GenericFailureMessage {
		t.Errorf("ErrorMessage() = %q, want generic message", ErrorMessage(err))
	}
}

func TestSyncOccupancyPayload(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/occupancy/" {
			t.Errorf("request = %s %s, want POST /occupancy/", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
	}, nil)

	err := client.SyncOccupancy(context.Background(), OccupancySnapshot{CafeID: "c1", TwoTables: 2, TwoTableSeats: 4})
	if err != nil {
		t.Fatalf("SyncOccupancy() error = %v", err)
	}
	for _, key := range []string{"cafe_id", "two_tables", "four_tables", "two_table_seats", "four_table_seats",
		"two_tables_occupied", "four_tables_occupied", "two_seats_occupied", "four_seats_occupied", "table_config"} {
		if _, ok := body[key]; !ok {
			t.Errorf("payload missing %q", key)
		}
	}
	if cfg, ok := body["table_config"].([]any); !ok || len(cfg) != 0 {
		t.Errorf("table_config = %v, want empty array", body["table_config"])
	}
}

func TestTodayCheckInsQuery(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("user_sub")
		w.Write([]byte(`["c1","c2"]`))
	}, nil)

	ids, err := client.TodayCheckIns(context.Background(), "user+1")
	if err != nil {
		t.Fatalf("TodayCheckIns() error = %v", err)
	}
	if gotQuery != "user+1" {
		t.Errorf("user_sub = %q, want user+1", gotQuery)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %v, want 2 entries", ids)
	}
}

func TestListCafesCache(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodGet {
			hits++
		}
		if r.Method == http.MethodPatch {
			w.Write([]byte(`{"id":"c1"}`))
			return
		}
		w.Write([]byte(`[{"id":"c1","name":"Kava"}]`))
	}, func(cfg *Config) {
		cfg.Cache = newMemoryCache()
		cfg.CacheTTL = time.Minute
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		cafes, err := client.ListCafes(ctx)
		if err != nil {
			t.Fatalf("ListCafes() error = %v", err)
		}
		if len(cafes) != 1 {
			t.Fatalf("cafes = %d, want 1", len(cafes))
		}
	}
	if hits != 1 {
		t.Errorf("GET hits = %d, want 1 with cache", hits)
	}

	name := "Kava Bar"
	if _, err := client.UpdateCafe(ctx, "c1", CafeUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateCafe() error = %v", err)
	}
	if _, err := client.ListCafes(ctx); err != nil {
		t.Fatalf("ListCafes() error = %v", err)
	}
	if hits != 2 {
		t.Errorf("GET hits = %d, want 2 after invalidation", hits)
	}
}

func TestWritesInvalidateCafeList(t *testing.T) {
	tests := []struct {
		name  string
		write func(ctx context.Context, c *Client) error
	}{
		{
			name: "occupancy sync",
			write: func(ctx context.Context, c *Client) error {
				return c.SyncOccupancy(ctx, OccupancySnapshot{CafeID: "c1"})
			},
		},
		{
			name: "direct story",
			write: func(ctx context.Context, c *Client) error {
				return c.CreateStoryDirect(ctx, StoryDirect{CafeID: "c1", UserSub: "u1", ImageURL: "https://cdn/x.jpg"})
			},
		},
		{
			name: "multipart story",
			write: func(ctx context.Context, c *Client) error {
				return c.CreateStory(ctx, StoryUpload{
					CafeID: "c1",
					UserID: "u1",
					Photo:  File{Name: "x.jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpeg")},
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			gets := 0
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				defer mu.Unlock()
				if r.Method != http.MethodGet {
					w.WriteHeader(http.StatusCreated)
					w.Write([]byte(`{}`))
					return
				}
				gets++
				w.Write([]byte(`[{"id":"c1","name":"Kava"}]`))
			}, func(cfg *Config) {
				cfg.Cache = newMemoryCache()
				cfg.CacheTTL = time.Minute
			})

			ctx := context.Background()
			if _, err := client.ListCafes(ctx); err != nil {
				t.Fatalf("ListCafes() error = %v", err)
			}
			if err := tt.write(ctx, client); err != nil {
				t.Fatalf("write error = %v", err)
			}
			if _, err := client.ListCafes(ctx); err != nil {
				t.Fatalf("ListCafes() error = %v", err)
			}

			mu.Lock()
			defer mu.Unlock()
			if gets != 2 {
				t.Errorf("GET hits = %d, want 2 after the write", gets)
			}
		})
	}
}

func TestCreateCafeMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			return
		}
		if r.FormValue("name") != "Kava" || r.FormValue("city") != "Zagreb" {
			t.Errorf("fields = %v", r.MultipartForm.Value)
		}
		photos := r.MultipartForm.File["cafe_photos"]
		if len(photos) != 2 {
			t.Errorf("cafe_photos = %d, want 2", len(photos))
		}
		if len(r.MultipartForm.File["menu_photos"]) != 1 {
			t.Errorf("menu_photos missing")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new-cafe","name":"Kava"}`))
	}, nil)

	cafe, err := client.CreateCafe(context.Background(), CafeForm{
		Fields: map[string]string{"name": "Kava", "city": "Zagreb"},
		CafePhotos: []File{
			{Name: "a.jpg", ContentType: "image/jpeg", Body: strings.NewReader("a")},
			{Name: "b.jpg", ContentType: "image/jpeg", Body: strings.NewReader("b")},
		},
		MenuPhotos: []File{{Name: "menu.png", Body: strings.NewReader("m")}},
	})
	if err != nil {
		t.Fatalf("CreateCafe() error = %v", err)
	}
	if cafe.ID != "new-cafe" {
		t.Errorf("cafe id = %q, want new-cafe", cafe.ID)
	}
}

func TestUploadObject(t *testing.T) {
	var gotBody, gotType, gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
	}, func(cfg *Config) {
		cfg.Token = func(context.Context) (string, error) { return "secret", nil }
	})

	if err := client.UploadObject(context.Background(), client.baseURL+"/bucket/key.jpg", "image/jpeg", strings.NewReader("pixels")); err != nil {
		t.Fatalf("UploadObject() error = %v", err)
	}
	if gotBody != "pixels" || gotType != "image/jpeg" {
		t.Errorf("upload = %q (%s), want pixels (image/jpeg)", gotBody, gotType)
	}
	if gotAuth != "" {
		t.Error("presigned upload must not carry the bearer token")
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, func(cfg *Config) {
		cfg.Metrics = metrics
	})

	if _, err := client.ListCafeReviews(context.Background(), "c1"); err != nil {
		t.Fatalf("ListCafeReviews() error = %v", err)
	}
	if n := promtest.CollectAndCount(metrics.duration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}
