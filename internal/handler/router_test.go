package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/filedrop/internal/metrics"
	"github.com/hitoshi/filedrop/internal/middleware"
	"github.com/hitoshi/filedrop/internal/model"
	"github.com/hitoshi/filedrop/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

// --- モック定義 ---

type mockUserResolver struct {
	CurrentUserFunc func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockUserResolver) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	return m.CurrentUserFunc(ctx, token)
}

// --- テストヘルパー ---

func newTestRouter(t *testing.T, svc *mockIdentityService, fileSvc *mockFileService, resolver *mockUserResolver) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	return NewRouter(&RouterDeps{
		UserResolver:      resolver,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		IdentityService:   svc,
		FileService:       fileSvc,
		Spooler:           &mockSpooler{dir: t.TempDir()},
		Metrics:           metrics.NewCollector(reg),
		Gatherer:          reg,
		AuthConfig:        AuthHandlerConfig{},
		FileConfig:        FileHandlerConfig{},
	})
}

// --- テスト ---

func TestRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(t,
		&mockIdentityService{
			LoginFunc: func(ctx context.Context, name, password string) (*model.Session, error) {
				return &model.Session{Token: strings.Repeat("a", 64)}, nil
			},
		},
		&mockFileService{
			LookupFunc: func(ctx context.Context, key string) (*model.File, io.ReadCloser, error) {
				return &model.File{Key: key, DisplayName: "a.txt", Bytes: 1},
					io.NopCloser(strings.NewReader("x")), nil
			},
		},
		&mockUserResolver{},
	)

	t.Run("GET /health は認証なしで200", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("GET /metrics は認証なしで200", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("GET /f/{key} は認証なしでダウンロードできる", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/f/some-key", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
		}
		if rec.Body.String() != "x" {
			t.Errorf("ボディ: got %q", rec.Body.String())
		}
	})

	t.Run("POST /api/login は認証なしで到達できる", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/login",
			strings.NewReader(`{"username":"alice","password":"secret"}`))
		req.RemoteAddr = "203.0.113.1:50000"
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("セキュリティヘッダーが全レスポンスに付く", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("X-Content-Type-Optionsが設定されていません")
		}
	})
}

func TestRouter_AuthedRoutes(t *testing.T) {
	user := &model.User{ID: "user-1", Name: "alice", CreatedAt: time.Now()}

	router := newTestRouter(t,
		&mockIdentityService{
			GetUserFunc: func(ctx context.Context, userID string) (*model.User, error) {
				return user, nil
			},
		},
		&mockFileService{
			ListOwnedFunc: func(ctx context.Context, userID string) ([]*model.File, error) {
				if userID != "user-1" {
					t.Errorf("ユーザーID: got %s, want user-1", userID)
				}
				return nil, nil
			},
		},
		&mockUserResolver{
			CurrentUserFunc: func(ctx context.Context, token string) (*model.User, error) {
				if token != strings.Repeat("a", 64) {
					return nil, model.NewSessionRecordAbsentError()
				}
				return user, nil
			},
		},
	)

	validCookie := &http.Cookie{
		Name:  session.CookieName,
		Value: session.EncodeMarker(strings.Repeat("a", 64)),
	}

	t.Run("Cookieなしの保護ルートは404とコード110", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusNotFound)
		}
		body := decodeErrorBody(t, rec)
		if body["code"].(float64) != 110 {
			t.Errorf("エラーコード: got %v, want 110", body["code"])
		}
	})

	t.Run("失効トークンは404とコード111", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
		req.AddCookie(&http.Cookie{
			Name:  session.CookieName,
			Value: session.EncodeMarker(strings.Repeat("z", 64)),
		})
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusNotFound)
		}
		body := decodeErrorBody(t, rec)
		if body["code"].(float64) != 111 {
			t.Errorf("エラーコード: got %v, want 111", body["code"])
		}
	})

	t.Run("有効なCookieでGET /api/userが通る", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
		req.AddCookie(validCookie)
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), `"username":"alice"`) {
			t.Errorf("レスポンスボディ: %s", rec.Body.String())
		}
	})

	t.Run("有効なCookieでGET /api/filesが通る", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
		req.AddCookie(validCookie)
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("存在しないルートは404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}
