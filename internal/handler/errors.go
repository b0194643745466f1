package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/filedrop/internal/middleware"
	"github.com/hitoshi/filedrop/internal/model"
)

// handleServiceError はサービス層のエラーをHTTPレスポンスへ変換する。
// APIErrorは数値コードつきのJSONとして返し、それ以外のエラーは詳細を
// ログにのみ残して一般的な500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	slog.Error("request failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
