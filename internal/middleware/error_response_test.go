package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/filedrop/internal/model"
)

// エラーコードがHTTPステータスとJSONボディに正しく反映されることを検証
func TestWriteErrorResponse_MapsCodeToStatusAndBody(t *testing.T) {
	tests := []struct {
		name       string
		apiErr     *model.APIError
		wantStatus int
		wantCode   int
	}{
		{"duplicate username", model.NewDuplicateUsernameError("alice"), http.StatusConflict, 120},
		{"invalid credentials", model.NewInvalidCredentialsError(), http.StatusUnprocessableEntity, 130},
		{"permission denied", model.NewPermissionDeniedError("key"), http.StatusForbidden, 150},
		{"file not found", model.NewFileNotFoundError("key"), http.StatusNotFound, 152},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.apiErr)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", body.Code, tt.wantCode)
			}
			if body.Message == "" {
				t.Error("message should not be empty")
			}
			if body.Category == "" {
				t.Error("category should not be empty")
			}
		})
	}
}

// 内部エラーレスポンスが500とコード100を返すことを検証
func TestWriteInternalServerError_Returns500WithCode100(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != int(model.CodeInternal) {
		t.Errorf("code = %d, want %d", body.Code, model.CodeInternal)
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
}
