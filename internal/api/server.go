package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/model"
	"rollcall/internal/storage"
)

// SessionControl is the slice of the session controller the API needs.
type SessionControl interface {
	Start() bool
	Stop() bool
	Reset()
	Running() bool
	Status() model.Status
	RecentLog(limit int) []model.LogEntry
	LogSince(ts time.Time) []model.LogEntry
	DailySummary() model.DailySummary
	CurrentRoster() []model.RosterRow
	UpdateConfig(cfg *config.Config)
}

type Server struct {
	cfg     *config.Manager
	session SessionControl
	store   storage.Store
	logger  *slog.Logger
	version string
}

func Start(ctx context.Context, cfg *config.Manager, session SessionControl, store storage.Store, logger *slog.Logger, version string) *http.Server {
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
		session: session,
		store:   store,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/log", server.handleLog)
	mux.HandleFunc("/attendance/today", server.handleToday)
	mux.HandleFunc("/attendance/summary", server.handleSummary)
	mux.HandleFunc("/attendance/current", server.handleCurrent)
	mux.HandleFunc("/attendance/export", server.handleExport)
	mux.HandleFunc("/students", server.handleStudents)
	mux.HandleFunc("/students/", server.handleStudentByID)
	mux.HandleFunc("/session/start", server.handleSessionStart)
	mux.HandleFunc("/session/stop", server.handleSessionStop)
	mux.HandleFunc("/session/reset", server.handleSessionReset)
	mux.HandleFunc("/config/tracking", server.handleTrackingConfig)
	mux.HandleFunc("/ws", server.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
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

type statusResponse struct {
	Status     string                `json:"status"`
	Time       string                `json:"time"`
	Version    string                `json:"version"`
	ConfigPath string                `json:"config_path"`
	Session    model.Status          `json:"session"`
	Tracking   config.TrackingConfig `json:"tracking"`
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
		Session:    s.session.Status(),
		Tracking:   cfg.Tracking,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var list []model.LogEntry
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.session.LogSince(ts)
	} else {
		list = s.session.RecentLog(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": list,
		"count":   len(list),
	})
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rows, err := s.store.TodayAttendance(r.Context())
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("today attendance query failed", "err", err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":  rows,
		"count": len(rows),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.session.DailySummary())
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rows := s.session.CurrentRoster()
	resp := map[string]any{
		"rows":  rows,
		"count": len(rows),
	}
	// Store-side headcount: entries recorded today with no exit yet. Can lag
	// the live presence set by up to one cooldown window.
	if n, err := s.store.Headcount(r.Context()); err == nil {
		resp["headcount"] = n
	} else if s.logger != nil {
		s.logger.Warn("headcount query failed", "err", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rows, err := s.store.TodayAttendance(r.Context())
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("today attendance query failed", "err", err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"identity", "name", "student_no", "entry_time", "exit_time", "status"})
	for _, row := range rows {
		entry, exit := "", ""
		if row.EntryTime != nil {
			entry = row.EntryTime.Format(time.RFC3339)
		}
		if row.ExitTime != nil {
			exit = row.ExitTime.Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			strconv.FormatInt(int64(row.Identity), 10),
			row.Name,
			row.StudentNo,
			entry,
			exit,
			row.Status,
		})
	}
	cw.Flush()
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		students, err := s.store.Students(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"students": students,
			"count":    len(students),
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			Name      string `json:"name"`
			StudentNo string `json:"student_no"`
		}
		if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Name) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id, err := s.store.AddStudent(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.StudentNo))
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("add student failed", "err", err)
			}
			w.WriteHeader(http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStudentByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/students/")
	if rest, ok := strings.CutSuffix(idStr, "/history"); ok {
		s.handleStudentHistory(w, r, rest)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		st, err := s.store.StudentByID(r.Context(), model.Identity(id))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if st == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodDelete:
		deleted, err := s.store.DeleteStudent(r.Context(), model.Identity(id))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !deleted {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStudentHistory(w http.ResponseWriter, r *http.Request, idStr string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	rows, err := s.store.StudentHistory(r.Context(), model.Identity(id), days)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("student history query failed", "identity", id, "err", err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": id,
		"days":     days,
		"rows":     rows,
		"count":    len(rows),
	})
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.session.Start() {
		writeJSON(w, http.StatusConflict, map[string]any{"status": "already running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.session.Stop() {
		writeJSON(w, http.StatusConflict, map[string]any{"status": "not running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.session.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (s *Server) handleTrackingConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"tracking": s.cfg.Get().Tracking,
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var tc config.TrackingConfig
		if err := json.Unmarshal(body, &tc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		next := *current
		next.Tracking = tc
		if err := config.Validate(&next); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := s.cfg.Update(&next); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.session.UpdateConfig(&next)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
