package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/filedrop/internal/model"
)

// TestRouterIntegration_ProtectedRoute_WithMiddlewareChain は
// CORS -> Session -> RateLimit のミドルウェアチェーンが
// chi.Routerで正しく動作することを検証する。
func TestRouterIntegration_ProtectedRoute_WithMiddlewareChain(t *testing.T) {
	resolver := &mockUserResolver{
		currentUserFn: func(ctx context.Context, token string) (*model.User, error) {
			if token == "router-test-token" {
				return &model.User{ID: "user-router-test", Name: "alice"}, nil
			}
			return nil, model.NewSessionRecordAbsentError()
		},
	}

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    200,
		LoginRate:       100,
		LoginBurst:      200,
		CleanupInterval: 1 * time.Minute,
	})
	defer rl.Stop()

	r := chi.NewRouter()
	r.Use(NewCORSMiddleware("http://localhost:3000"))

	// 認証が必要なルートグループ
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(resolver, false))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/user", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})

		r.Post("/api/files", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID, "action": "done"})
		})
	})

	// テスト1: GET /api/user は有効なセッションで通る
	t.Run("GET_user_with_session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
		req.AddCookie(sessionCookie("router-test-token"))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}

		var body map[string]string
		json.NewDecoder(w.Result().Body).Decode(&body)
		if body["user_id"] != "user-router-test" {
			t.Errorf("user_id = %q, want %q", body["user_id"], "user-router-test")
		}
	})

	// テスト2: GET /api/user はCookieなしで404
	t.Run("GET_user_no_session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
		}
	})

	// テスト3: POST /api/files は有効なセッションで通る
	t.Run("POST_files_with_session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/files", nil)
		req.AddCookie(sessionCookie("router-test-token"))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}
	})

	// テスト4: 失効済みトークンは404になりCookieが消される
	t.Run("GET_user_stale_session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
		req.AddCookie(sessionCookie("stale-token"))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
		}
	})

	// テスト5: CORSヘッダーが全レスポンスに付与される
	t.Run("CORS_headers_present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
		req.AddCookie(sessionCookie("router-test-token"))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if origin := w.Result().Header.Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", origin, "http://localhost:3000")
		}
	})
}
