package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/filedrop/internal/middleware"
	"github.com/hitoshi/filedrop/internal/model"
)

// FileServiceInterface はファイルハンドラーが必要とするサービスインターフェース。
type FileServiceInterface interface {
	Create(ctx context.Context, userID, displayName, durationCode, spoolPath string, bytes int64) (*model.File, error)
	Lookup(ctx context.Context, key string) (*model.File, io.ReadCloser, error)
	Delete(ctx context.Context, callerID, key string) (*model.File, error)
	ListOwned(ctx context.Context, userID string) ([]*model.File, error)
}

// Spooler は受信中のバイト列を一時保管するインターフェース。
// storage.Storeが実装する。
type Spooler interface {
	CreateSpoolFile(userID string) (*os.File, error)
	Discard(spoolPath string) error
}

// FileRecorder はファイルハンドラーが記録するメトリクス。
type FileRecorder interface {
	RecordUpload(bytes int64)
	RecordDownload()
	RecordDelete()
}

// FileHandlerConfig はファイルハンドラーの設定。
type FileHandlerConfig struct {
	MaxUploadBytes int64 // 1アップロードの上限バイト数。0は無制限
}

// FileHandler はファイルのライフサイクル関連のHTTPハンドラー。
type FileHandler struct {
	service FileServiceInterface
	spooler Spooler
	metrics FileRecorder
	config  FileHandlerConfig
}

// NewFileHandler はFileHandlerを生成する。
func NewFileHandler(service FileServiceInterface, spooler Spooler, metrics FileRecorder, config FileHandlerConfig) *FileHandler {
	return &FileHandler{
		service: service,
		spooler: spooler,
		metrics: metrics,
		config:  config,
	}
}

type fileResponse struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	UploadDate time.Time `json:"upload_date"`
	DeleteDate time.Time `json:"delete_date"`
	Downloads  int64     `json:"downloads"`
	Bytes      int64     `json:"bytes"`
}

func toFileResponse(f *model.File) fileResponse {
	return fileResponse{
		Key:        f.Key,
		Name:       f.DisplayName,
		UploadDate: f.UploadDate,
		DeleteDate: f.DeleteDate,
		Downloads:  f.Downloads,
		Bytes:      f.Bytes,
	}
}

// Upload はmultipartで受け取ったファイルを公開する。
// POST /api/files
//
// 受け付けるパートは2つ: "file"（ファイル本体）と"duration"（保持期間コード）。
// 本体はスプールへストリーム書き込みし、メモリに載せない。
// パートの出現順序は問わないが、未知のパート名は拒否する。
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		slog.Error("user ID missing after session middleware", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if h.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewMultipartRequestError(err.Error()))
		return
	}

	var (
		spoolPath   string
		displayName string
		size        int64
		gotFile     bool
		duration    string
		gotDuration bool
	)
	defer func() {
		// 公開まで到達しなかったスプールを片付ける
		if spoolPath != "" {
			if err := h.spooler.Discard(spoolPath); err != nil {
				slog.Warn("failed to discard spool file", slog.String("error", err.Error()))
			}
		}
	}()

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			middleware.WriteErrorResponse(w, model.NewMultipartRequestError(err.Error()))
			return
		}

		switch part.FormName() {
		case "file":
			if gotFile {
				middleware.WriteErrorResponse(w, model.NewMultipartValueError("file", "duplicate part"))
				return
			}
			spool, err := h.spooler.CreateSpoolFile(userID)
			if err != nil {
				slog.Error("failed to create spool file", slog.String("error", err.Error()))
				middleware.WriteInternalServerError(w)
				return
			}
			n, err := io.Copy(spool, part)
			spool.Close()
			spoolPath = spool.Name()
			if err != nil {
				middleware.WriteErrorResponse(w, model.NewMultipartValueError("file", "truncated body"))
				return
			}
			displayName = part.FileName()
			size = n
			gotFile = true

		case "duration":
			value, err := io.ReadAll(io.LimitReader(part, 16))
			if err != nil {
				middleware.WriteErrorResponse(w, model.NewMultipartValueError("duration", "unreadable value"))
				return
			}
			duration = string(value)
			gotDuration = true

		default:
			middleware.WriteErrorResponse(w, model.NewMultipartKeyError(part.FormName()))
			return
		}
	}

	if !gotFile {
		middleware.WriteErrorResponse(w, model.NewMultipartKeyError("file"))
		return
	}
	if !gotDuration {
		middleware.WriteErrorResponse(w, model.NewMultipartKeyError("duration"))
		return
	}

	created, err := h.service.Create(r.Context(), userID, displayName, duration, spoolPath, size)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	spoolPath = "" // 公開済み。スプールはもう存在しない

	h.metrics.RecordUpload(created.Bytes)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toFileResponse(created))
}

// List は自分が所有するファイルの一覧を返す。
// GET /api/files
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		slog.Error("user ID missing after session middleware", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	files, err := h.service.ListOwned(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]fileResponse, 0, len(files))
	for _, f := range files {
		responses = append(responses, toFileResponse(f))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]fileResponse{"files": responses})
}

// Delete は自分が所有するファイルを削除する。
// DELETE /api/files/{key}
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		slog.Error("user ID missing after session middleware", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	key := chi.URLParam(r, "key")
	deleted, err := h.service.Delete(r.Context(), userID, key)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordDelete()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"key": deleted.Key})
}

// Download はキーを知っている誰にでもファイル本体を配信する。
// GET /f/{key}
//
// 認証は不要。キー自体が推測不能な能力トークンとして働く。
// 元のファイル名はContent-Dispositionでバイト単位そのまま返す。
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	file, body, err := h.service.Lookup(r.Context(), key)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer body.Close()

	h.metrics.RecordDownload()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", contentDisposition(file.DisplayName))
	if file.Bytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Bytes, 10))
	}

	if _, err := io.Copy(w, body); err != nil {
		// ヘッダー送信後はエラーを返せない。ログのみ
		slog.Warn("download interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// contentDisposition は元のファイル名を保持するattachmentヘッダー値を作る。
// 非ASCIIの名前はRFC 2231のfilename*として符号化され、復号すると
// 元のバイト列にそのまま戻る。
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	// FormatMediaTypeが符号化を拒んだ名前はquoted stringで渡す
	return `attachment; filename="` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}
