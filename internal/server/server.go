package server

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"compass_sync/internal/logger"
	"compass_sync/internal/models"
	"compass_sync/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server отдаёт сохранённое состояние только для чтения.
type Server struct {
	news        *repository.NewsItems
	messages    *repository.Messages
	attachments *repository.Attachments
	store       Pinger
}

// NewServer создаёт сервер поверх репозиториев.
func NewServer(news *repository.NewsItems, messages *repository.Messages, attachments *repository.Attachments, store Pinger) *Server {
	return &Server{news: news, messages: messages, attachments: attachments, store: store}
}

// Handler регистрирует маршруты и оборачивает их в middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.HealthCheck)
	mux.HandleFunc("GET /api/news/{limit}", s.GetNews)
	mux.HandleFunc("GET /api/messages/{limit}", s.GetMessages)
	mux.HandleFunc("GET /api/attachments/{id}", s.GetAttachment)
	mux.Handle("GET /metrics", promhttp.Handler())
	return RequestIDMiddleware(LoggingMiddleware(mux))
}

// HealthCheck отвечает 200 OK, если хранилище доступно, иначе 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("OK"))
}

// GetNews возвращает JSON-массив последних limit новостей, от новых к старым.
func (s *Server) GetNews(w http.ResponseWriter, r *http.Request) {
	items, err := repository.LatestNewsItems(r.Context(), s.news, parseLimit(r))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, items)
}

// GetMessages возвращает JSON-массив последних limit сообщений.
func (s *Server) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := repository.LatestMessages(r.Context(), s.messages, parseLimit(r))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, msgs)
}

// GetAttachment отдаёт содержимое вложения с исходным именем файла.
func (s *Server) GetAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid attachment id", http.StatusBadRequest)
		return
	}

	att, ok, err := s.attachments.Find(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !ok || att.Data == nil {
		http.NotFound(w, r)
		return
	}

	// Содержимое пришло из Compass: браузер не должен показывать его внутри страницы.
	w.Header().Set("Content-Type", contentType(att))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", contentDisposition(att))
	w.Write(att.Data)
}

func contentDisposition(att models.Attachment) string {
	name := att.FileName
	if name == "" {
		name = "attachment-" + strconv.FormatInt(att.ID, 10)
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func contentType(att models.Attachment) string {
	if len(att.Data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(att.Data)
}

// parseLimit извлекает limit из пути; некорректное значение заменяется значением по умолчанию.
func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.PathValue("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger.Log.WithError(err).WithFields(logger.Fields{
		"path":       r.URL.Path,
		"request_id": RequestID(r.Context()),
	}).Error("Request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).WithField("path", r.URL.Path).Warn("Failed to encode response")
	}
}
