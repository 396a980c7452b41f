package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/auth"
)

const sessionCookie = "horizon_session"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
	validate   *validator.Validate
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     logger,
		validate:   validator.New(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.corsOrigin},
		AllowedMethods:   []string{"GET", "PATCH", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/api/admin/login", s.handleLogin)
	r.Post("/api/admin/logout", s.handleLogout)

	r.Route("/api/admin/universe", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/", s.handleGetUniverse)
		r.Patch("/", s.handleSaveUniverse)
		r.Post("/", s.handleCommitUniverse)
	})

	return r
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "", nil)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "password is required", "", nil)
		return
	}

	session, err := s.service.Login(r.Context(), body.Password, clientIP(r))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleGetUniverse(w http.ResponseWriter, r *http.Request) {
	sync := strings.EqualFold(r.URL.Query().Get("syncFromGitHub"), "true")
	resp, err := s.service.LoadUniverse(r.Context(), sync)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type saveRequest struct {
	Universe    json.RawMessage `json:"universe"`
	CurrentHash string          `json:"currentHash"`
}

func (s *HTTPServer) handleSaveUniverse(w http.ResponseWriter, r *http.Request) {
	var body saveRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "", nil)
		return
	}
	if len(body.Universe) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "universe is required", "", nil)
		return
	}

	hash, err := s.service.SaveUniverse(r.Context(), body.Universe, body.CurrentHash)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "hash": hash})
}

type commitRequest struct {
	// Universe is present only in the direct-commit variant; its absence
	// selects the disk-intermediated path.
	Universe      json.RawMessage `json:"universe"`
	CommitMessage string          `json:"commitMessage" validate:"required"`
	CreatePR      bool            `json:"createPR"`
	GitBaseHash   string          `json:"gitBaseHash"`
}

func (s *HTTPServer) handleCommitUniverse(w http.ResponseWriter, r *http.Request) {
	var body commitRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "", nil)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "commitMessage is required", "", nil)
		return
	}

	var result *CommitResult
	var err error
	if len(body.Universe) > 0 {
		result, err = s.service.CommitUniverseDirect(r.Context(), body.Universe, body.CommitMessage, body.CreatePR, body.GitBaseHash)
	} else {
		result, err = s.service.CommitUniverse(r.Context(), body.CommitMessage, body.CreatePR, body.GitBaseHash)
	}
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	payload := map[string]any{
		"success": true,
		"message": result.Message,
		"sha":     result.Sha,
		"hash":    result.Hash,
	}
	if result.PRURL != "" {
		payload["prUrl"] = result.PRURL
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie(sessionCookie); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", "", nil)
			return
		}
		if err := s.service.VerifySession(token); err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", "", nil)
				return
			}
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session check failed", "", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(recorder, r)

		s.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.Status()),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Advice, domainErr.Details)
		return
	}
	s.logger.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", "", nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the failure envelope: message is the short summary,
// "error" the longer remediation text when one exists.
func writeError(w http.ResponseWriter, status int, code, message, advice string, details any) {
	if advice == "" {
		advice = message
	}
	response := map[string]any{
		"success": false,
		"code":    code,
		"message": message,
		"error":   advice,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// clientIP keys the login rate limiter. RealIP middleware has already folded
// X-Forwarded-For / X-Real-IP into RemoteAddr; anything unparseable degrades
// to a shared "unknown" bucket rather than bypassing the limit.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
