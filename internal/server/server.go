package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jeefy/pybot/internal/chat"
	"github.com/jeefy/pybot/internal/models"
	"github.com/jeefy/pybot/internal/store"
)

const (
	defaultConversationLimit = 20
	maxConversationLimit     = 200
)

// routePrefixes mounts every route at the root and under /api.
var routePrefixes = []string{"", "/api"}

type Server struct {
	chat    *chat.Service
	store   store.Store
	mux     *http.ServeMux
	handler http.Handler
	logger  *slog.Logger
}

type trainResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

type statusResponse struct {
	Status           string `json:"status"`
	ChatbotAvailable bool   `json:"chatbot_available"`
	BackendType      string `json:"backend_type"`
	Database         string `json:"database"`
}

// New builds the HTTP API over svc. st serves the read-only listing routes and
// must be the store svc writes to.
func New(svc *chat.Service, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		chat:   svc,
		store:  st,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.routes()
	s.handler = Chain(s.mux, Recover(logger), RequestID(), Logging(logger), CORS())
	return s
}

func (s *Server) Router() http.Handler { return s.handler }

func (s *Server) routes() {
	for _, p := range routePrefixes {
		s.mux.HandleFunc(p+"/chat", s.handleChat)
		s.mux.HandleFunc(p+"/status", s.handleStatus)
		s.mux.HandleFunc(p+"/stats", s.handleStats)
		s.mux.HandleFunc(p+"/train", s.handleTrain)
		s.mux.HandleFunc(p+"/conversations", s.handleConversations)
		s.mux.HandleFunc(p+"/conversations/", s.handleConversationByID)
		s.mux.HandleFunc(p+"/patterns", s.handlePatterns)
		s.mux.HandleFunc(p+"/patterns/", s.handlePatternByID)
		s.mux.HandleFunc(p+"/health", s.handleHealth)
	}
}

// POST /chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}
	resp, err := s.chat.Respond(r.Context(), req)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "No message provided")
	case err != nil:
		s.logger.Error("chat failed", "error", err, "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type describer interface {
		Describe() string
	}
	db := "unknown"
	if d, ok := s.store.(describer); ok {
		db = d.Describe()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:           "online",
		ChatbotAvailable: true,
		BackendType:      s.chat.BackendName(),
		Database:         db,
	})
}

// GET /stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.chat.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// POST /train
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Pattern and response are required")
		return
	}
	id, err := s.chat.Train(r.Context(), req)
	if errors.Is(err, store.ErrInvalidPattern) {
		writeError(w, http.StatusBadRequest, "Pattern and response are required")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trainResponse{Message: "Training pattern added successfully", ID: id})
}

// GET /conversations?limit=n
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := defaultConversationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxConversationLimit)
	}
	recs, err := s.store.RecentConversations(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// GET /conversations/{id}
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := idFromPath(r.URL.Path, "/conversations/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rec, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /patterns?category=&source=
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	patterns, err := s.store.ListPatterns(r.Context(), store.PatternFilter{
		Category: q.Get("category"),
		Source:   q.Get("source"),
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if patterns == nil {
		patterns = []models.PatternEntry{}
	}
	writeJSON(w, http.StatusOK, patterns)
}

// /patterns/{id}
func (s *Server) handlePatternByID(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(r.URL.Path, "/patterns/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		p, err := s.store.GetPattern(ctx, id)
		if err != nil {
			s.respondStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := s.store.DeletePattern(ctx, id); err != nil {
			s.respondStoreError(w, r, err)
			return
		}
		s.logger.Info("deleted pattern", "id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrBuiltinPattern):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err, "request_id", RequestIDFrom(r.Context()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// idFromPath parses the numeric segment following seg, e.g. "/api/patterns/12".
func idFromPath(path, seg string) (int64, bool) {
	i := strings.Index(path, seg)
	if i < 0 {
		return 0, false
	}
	rest := strings.TrimSuffix(path[i+len(seg):], "/")
	if rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
