package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docbrief/internal/config"
	"docbrief/internal/extract"
	"docbrief/internal/history"
	"docbrief/internal/model"
	"docbrief/internal/quota"
	"docbrief/internal/summarize"
)

type Server struct {
	cfg     *config.Manager
	service *summarize.Service
	quota   *quota.Tracker
	history *history.Store
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path,omitempty"`
	Quota      quotaStatus  `json:"quota"`
	Dedup      dedupStatus  `json:"dedup"`
	Notify     notifyStatus `json:"notify"`
}

type quotaStatus struct {
	DailyLimit int    `json:"daily_limit"`
	Window     string `json:"window"`
}

type dedupStatus struct {
	TTL           string `json:"ttl"`
	SweepInterval string `json:"sweep_interval"`
}

type notifyStatus struct {
	Kafka   bool `json:"kafka"`
	Webhook bool `json:"webhook"`
}

func Start(ctx context.Context, cfg *config.Manager, service *summarize.Service, tracker *quota.Tracker, hist *history.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		service: service,
		quota:   tracker,
		history: hist,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/summarize", server.handleSummarize)
	mux.HandleFunc("/quota", server.handleQuota)
	mux.HandleFunc("/history", server.handleHistory)
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/admin/reset-quota", server.handleResetQuota)
	mux.HandleFunc("/admin/sweep", server.handleSweep)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	maxBytes := s.cfg.Get().Extract.MaxInputBytes
	body, err := readBody(w, r, maxBytes)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty request body")
		return
	}
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))

	res, err := s.service.Summarize(r.Context(), summarize.Request{
		UserID:  userID,
		Content: body,
	})
	if err != nil {
		var qe *summarize.QuotaExceededError
		if errors.As(err, &qe) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": "quota exceeded",
				"quota": qe.Status,
			})
			return
		}
		var ue *summarize.UpstreamError
		if errors.As(err, &ue) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if errors.Is(err, extract.ErrInputTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readBody accepts either a multipart upload (field "file") or a raw
// body.
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, err
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxBytes+1))
	}
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return
	}
	writeJSON(w, http.StatusOK, s.quota.Peek(userID))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	list := s.history.List(userID, limit)
	if list == nil {
		list = []model.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summaries": list,
		"count":     len(list),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Quota: quotaStatus{
			DailyLimit: cfg.Quota.DailyLimit,
			Window:     cfg.Quota.Window.String(),
		},
		Dedup: dedupStatus{
			TTL:           cfg.Dedup.TTL.String(),
			SweepInterval: cfg.Dedup.SweepInterval.String(),
		},
		Notify: notifyStatus{
			Kafka:   cfg.Notify.Kafka.Enabled,
			Webhook: cfg.Notify.Webhook.Enabled,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		UserID string `json:"user_id"`
	}
	_ = json.Unmarshal(body, &req)
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	s.quota.Reset(userID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	removed := s.quota.SweepExpired()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"removed": removed,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
