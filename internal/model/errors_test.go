package model

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

// 各エラーコードがHTTPステータス対応表に載っていることを検証
func TestAPIError_HTTPStatus_AllCodesMapped(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		code ErrorCode
		want int
	}{
		{"internal", NewInternalError(), CodeInternal, http.StatusInternalServerError},
		{"session cookie absent", NewSessionCookieAbsentError(), CodeSessionCookieAbsent, http.StatusNotFound},
		{"session record absent", NewSessionRecordAbsentError(), CodeSessionRecordAbsent, http.StatusNotFound},
		{"duplicate username", NewDuplicateUsernameError("alice"), CodeDuplicateUsername, http.StatusConflict},
		{"password mismatch", NewPasswordMismatchError(), CodePasswordMismatch, http.StatusUnprocessableEntity},
		{"invalid credentials", NewInvalidCredentialsError(), CodeInvalidCredentials, http.StatusUnprocessableEntity},
		{"multipart request", NewMultipartRequestError("no boundary"), CodeMultipartRequest, http.StatusLengthRequired},
		{"multipart key", NewMultipartKeyError("file"), CodeMultipartKey, http.StatusBadRequest},
		{"multipart value", NewMultipartValueError("duration", "x"), CodeMultipartValue, http.StatusBadRequest},
		{"permission denied", NewPermissionDeniedError("abc"), CodePermissionDenied, http.StatusForbidden},
		{"invalid duration", NewInvalidDurationError("z"), CodeInvalidDuration, http.StatusUnprocessableEntity},
		{"file not found", NewFileNotFoundError("abc"), CodeFileNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.code)
			}
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

// 対応表にないコードは500として扱われることを検証
func TestAPIError_HTTPStatus_UnknownCodeFallsBackTo500(t *testing.T) {
	e := &APIError{Code: ErrorCode(999), Message: "unknown"}
	if got := e.HTTPStatus(); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusInternalServerError)
	}
}

// Errorメソッドが数値コードを含むことを検証
func TestAPIError_Error_ContainsCode(t *testing.T) {
	e := NewDuplicateUsernameError("alice")
	if !strings.Contains(e.Error(), "120") {
		t.Errorf("Error() = %q, want it to contain the numeric code 120", e.Error())
	}
}

// errors.AsでAPIErrorをラップ越しに取り出せることを検証
func TestAPIError_ErrorsAs(t *testing.T) {
	var apiErr *APIError
	wrapped := errors.Join(errors.New("outer"), NewFileNotFoundError("k"))
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("errors.As should unwrap *APIError")
	}
	if apiErr.Code != CodeFileNotFound {
		t.Errorf("Code = %d, want %d", apiErr.Code, CodeFileNotFound)
	}
}

// InvalidCredentialsがユーザー名の存在有無を区別しないことを検証
func TestNewInvalidCredentialsError_SingleCodeForBothCauses(t *testing.T) {
	e := NewInvalidCredentialsError()
	if e.Code != CodeInvalidCredentials {
		t.Errorf("Code = %d, want %d", e.Code, CodeInvalidCredentials)
	}
	if e.Category != "auth" {
		t.Errorf("Category = %q, want %q", e.Category, "auth")
	}
}
