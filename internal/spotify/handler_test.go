package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crowdqueue/pkg/store"
)

func newSearchRouter(t *testing.T, st *store.MemoryStore, apiHandler http.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "app-token", ExpiresIn: 3600})
	}))
	t.Cleanup(tokenServer.Close)

	tokens := NewTokenManager("client-id", "client-secret", st, zap.NewNop())
	tokens.accountsURL = tokenServer.URL

	client := NewClient(tokens, "http://localhost/callback", 100)
	if apiHandler != nil {
		apiServer := httptest.NewServer(apiHandler)
		t.Cleanup(apiServer.Close)
		client.apiURL = apiServer.URL
	}

	h := NewHandler(client, tokens, st, "http://localhost:5173", 60, time.Minute, zap.NewNop())
	router := gin.New()
	h.RegisterRoutes(router.Group("/"))
	return router
}

func TestSearchRateLimit(t *testing.T) {
	t.Run("exhausted window rejects with remaining time", func(t *testing.T) {
		st := store.NewMemoryStore()
		ctx := context.Background()
		if _, err := st.IncrBy(ctx, searchRateKey, 60, time.Minute); err != nil {
			t.Fatal(err)
		}
		resetAt := time.Now().Add(30 * time.Second).UnixMilli()
		if err := st.Set(ctx, searchResetKey, resetAt, time.Minute); err != nil {
			t.Fatal(err)
		}

		router := newSearchRouter(t, st, func(w http.ResponseWriter, r *http.Request) {
			t.Error("catalog must not be hit once the window is exhausted")
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/search-spotify?q=heat+waves", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
		}
		var body struct {
			Error      string `json:"error"`
			RetryAfter int    `json:"retryAfter"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error == "" {
			t.Error("missing error message")
		}
		if body.RetryAfter != 30 {
			t.Errorf("retryAfter = %d, want 30", body.RetryAfter)
		}
	})

	t.Run("missing reset marker falls back to full window", func(t *testing.T) {
		st := store.NewMemoryStore()
		if _, err := st.IncrBy(context.Background(), searchRateKey, 60, time.Minute); err != nil {
			t.Fatal(err)
		}

		router := newSearchRouter(t, st, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/search-spotify?q=heat+waves", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
		}
		var body struct {
			RetryAfter int `json:"retryAfter"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.RetryAfter != 60 {
			t.Errorf("retryAfter = %d, want 60", body.RetryAfter)
		}
	})

	t.Run("under the limit searches the catalog", func(t *testing.T) {
		st := store.NewMemoryStore()
		router := newSearchRouter(t, st, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"tracks": map[string]any{
					"items": []Track{{
						ID:      "t1",
						Name:    "Heat Waves",
						URI:     "spotify:track:t1",
						Artists: []Artist{{Name: "Glass Animals"}},
					}},
				},
			})
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/search-spotify?q=heat+waves", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var body struct {
			Results []SearchResult `json:"results"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if len(body.Results) != 1 {
			t.Fatalf("results = %+v", body.Results)
		}
		got := body.Results[0]
		if got.SpotifyID != "t1" || got.Title != "Heat Waves" || got.Artist != "Glass Animals" {
			t.Errorf("result = %+v", got)
		}

		// First request opens the window and records its reset marker.
		var count int64
		if _, err := st.Get(context.Background(), searchRateKey, &count); err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("counter = %d, want 1", count)
		}
		var resetAt int64
		if found, err := st.Get(context.Background(), searchResetKey, &resetAt); err != nil || !found {
			t.Fatalf("reset marker not written: found=%v err=%v", found, err)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		router := newSearchRouter(t, store.NewMemoryStore(), nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/search-spotify", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}
