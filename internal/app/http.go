package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/metrics"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	authLimit  *clientLimiter
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     service.logger,
		metrics:    service.metrics,
		authLimit:  newClientLimiter(service.cfg.AuthRatePerMinute),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.instrument)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Could not find this route.", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed.", nil)
	})

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/signup", s.limited(s.handleSignup)).Methods(http.MethodPost)
	api.HandleFunc("/users/login", s.limited(s.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/users/logout", s.requireAuth(s.handleLogout)).Methods(http.MethodPost)
	api.HandleFunc("/users/getPersonalData", s.requireAuth(s.handlePersonalData)).Methods(http.MethodGet)
	api.HandleFunc("/users/user/{uid}", s.handleGetUser).Methods(http.MethodGet)

	api.HandleFunc("/boards", s.requireAuth(s.handleCreateBoard)).Methods(http.MethodPost)
	api.HandleFunc("/boards/title/{id}", s.requireAuth(s.handleRenameBoard)).Methods(http.MethodPatch)
	api.HandleFunc("/boards/lists/{id}", s.requireAuth(s.handleReorderLists)).Methods(http.MethodPatch)
	api.HandleFunc("/boards/user/{uid}", s.handleBoardsByUser).Methods(http.MethodGet)
	api.HandleFunc("/boards/{id}", s.handleGetBoard).Methods(http.MethodGet)
	api.HandleFunc("/boards/{id}", s.requireAuth(s.handleDeleteBoard)).Methods(http.MethodDelete)

	api.HandleFunc("/lists/shuffleCards", s.requireAuth(s.handleMoveCards)).Methods(http.MethodPatch)
	api.HandleFunc("/lists/title/{id}", s.requireAuth(s.handleRenameList)).Methods(http.MethodPatch)
	api.HandleFunc("/lists/cards/{id}", s.requireAuth(s.handleReorderCards)).Methods(http.MethodPatch)
	api.HandleFunc("/lists/board/{bid}", s.handleListsByBoard).Methods(http.MethodGet)
	api.HandleFunc("/lists/{id}", s.handleGetList).Methods(http.MethodGet)
	api.HandleFunc("/lists/{id}", s.requireAuth(s.handleDeleteList)).Methods(http.MethodDelete)
	api.HandleFunc("/lists/{boardId}", s.requireAuth(s.handleCreateList)).Methods(http.MethodPost)

	api.HandleFunc("/cards/list/{lid}", s.handleCardsByList).Methods(http.MethodGet)
	api.HandleFunc("/cards/{id}", s.handleGetCard).Methods(http.MethodGet)
	api.HandleFunc("/cards/{id}", s.requireAuth(s.handleRenameCard)).Methods(http.MethodPatch)
	api.HandleFunc("/cards/{id}", s.requireAuth(s.handleDeleteCard)).Methods(http.MethodDelete)
	api.HandleFunc("/cards/{listId}", s.requireAuth(s.handleCreateCard)).Methods(http.MethodPost)

	return s.withMiddleware(router)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"store": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["store"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Users

func (s *HTTPServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	var input SignupInput
	if !s.decode(w, r, &input) {
		return
	}
	result, err := s.service.Signup(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"userId": result.UserID,
		"email":  result.Email,
		"token":  result.Token,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input LoginInput
	if !s.decode(w, r, &input) {
		return
	}
	result, err := s.service.Login(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId": result.UserID,
		"email":  result.Email,
		"name":   result.Name,
		"token":  result.Token,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.Logout(r.Context(), session); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out."})
}

func (s *HTTPServer) handlePersonalData(w http.ResponseWriter, r *http.Request, session Session) {
	data, err := s.service.PersonalData(r.Context(), session)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  personalDataView(data),
		"token": data.Token,
	})
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": mapViews(users, userView)})
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetUser(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userView(user)})
}

// Boards

func (s *HTTPServer) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := s.service.GetBoard(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"board": boardView(board)})
}

func (s *HTTPServer) handleBoardsByUser(w http.ResponseWriter, r *http.Request) {
	boards, err := s.service.BoardsByUser(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": mapViews(boards, boardView)})
}

func (s *HTTPServer) handleCreateBoard(w http.ResponseWriter, r *http.Request, session Session) {
	var input TitleInput
	if !s.decode(w, r, &input) {
		return
	}
	board, err := s.service.CreateBoard(r.Context(), session, input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"board": boardView(board)})
}

func (s *HTTPServer) handleRenameBoard(w http.ResponseWriter, r *http.Request, session Session) {
	var input TitleInput
	if !s.decode(w, r, &input) {
		return
	}
	board, err := s.service.RenameBoard(r.Context(), session, mux.Vars(r)["id"], input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"board": boardView(board)})
}

func (s *HTTPServer) handleReorderLists(w http.ResponseWriter, r *http.Request, session Session) {
	var input ReorderListsInput
	if !s.decode(w, r, &input) {
		return
	}
	board, err := s.service.ReorderLists(r.Context(), session, mux.Vars(r)["id"], input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"board": boardView(board)})
}

func (s *HTTPServer) handleDeleteBoard(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteBoard(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Deleted board."})
}

// Lists

func (s *HTTPServer) handleGetList(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.GetList(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": listView(list)})
}

func (s *HTTPServer) handleListsByBoard(w http.ResponseWriter, r *http.Request) {
	lists, err := s.service.ListsByBoard(r.Context(), mux.Vars(r)["bid"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": mapViews(lists, listView)})
}

func (s *HTTPServer) handleCreateList(w http.ResponseWriter, r *http.Request, session Session) {
	var input TitleInput
	if !s.decode(w, r, &input) {
		return
	}
	list, err := s.service.CreateList(r.Context(), session, mux.Vars(r)["boardId"], input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"list": listView(list)})
}

func (s *HTTPServer) handleRenameList(w http.ResponseWriter, r *http.Request, session Session) {
	var input TitleInput
	if !s.decode(w, r, &input) {
		return
	}
	list, err := s.service.RenameList(r.Context(), session, mux.Vars(r)["id"], input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": listView(list)})
}

func (s *HTTPServer) handleReorderCards(w http.ResponseWriter, r *http.Request, session Session) {
	var input ReorderCardsInput
	if !s.decode(w, r, &input) {
		return
	}
	list, err := s.service.ReorderCards(r.Context(), session, mux.Vars(r)["id"], input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": listView(list)})
}

func (s *HTTPServer) handleMoveCards(w http.ResponseWriter, r *http.Request, session Session) {
	var input MoveCardsInput
	if !s.decode(w, r, &input) {
		return
	}
	if err := s.service.MoveCards(r.Context(), session, input); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Lists updated."})
}

func (s *HTTPServer) handleDeleteList(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteList(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Deleted list."})
}

// Cards

func (s *HTTPServer) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.GetCard(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"card": cardView(card)})
}

func (s *HTTPServer) handleCardsByList(w http.ResponseWriter, r *http.Request) {
	cards, err := s.service.CardsByList(r.Context(), mux.Vars(r)["lid"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": mapViews(cards, cardView)})
}

func (s *HTTPServer) handleCreateCard(w http.ResponseWriter, r *http.Request, session Session) {
	var input TitleInput
	if !s.decode(w, r, &input) {
		return
	}
	card, err := s.service.CreateCard(r.Context(), session, mux.Vars(r)["listId"], input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"card": cardView(card)})
}

func (s *HTTPServer) handleRenameCard(w http.ResponseWriter, r *http.Request, session Session) {
	var input TitleInput
	if !s.decode(w, r, &input) {
		return
	}
	card, err := s.service.RenameCard(r.Context(), session, mux.Vars(r)["id"], input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"card": cardView(card)})
}

func (s *HTTPServer) handleDeleteCard(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteCard(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Deleted card."})
}

type sessionHandler func(http.ResponseWriter, *http.Request, Session)

// requireAuth answers 403 for a missing, malformed, expired or revoked token.
func (s *HTTPServer) requireAuth(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusForbidden, "AUTH_FAILED", msgAuthFailed, nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusForbidden, "AUTH_FAILED", msgAuthFailed, nil)
				return
			}
			s.logger.ErrorContext(r.Context(), "session lookup failed", "request_id", requestIDFrom(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed.", nil)
			return
		}
		next(w, r, session)
	}
}

func (s *HTTPServer) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimit.allow(clientKey(r)) {
			respondError(w, rateLimited())
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		respondError(w, validationFailed([]fieldError{{Field: "body", Rule: "json"}}))
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.logger.InfoContext(ctx, "http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

// instrument runs after routing so requests are labelled by route template.
func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		s.metrics.ObserveRequest(r.Method, route, writer.status, time.Since(started))
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func respondError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusForbidden, "AUTH_FAILED", msgAuthFailed, nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
