// Package api serves the reference issue store over HTTP: the same routes
// and payloads the board client talks to, backed by internal/store.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	logger   *slog.Logger
	hashCost int
}

// Option configures a Server.
type Option func(*Server)

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) Option {
	return func(s *Server) { s.hashCost = cost }
}

// NewServer creates a new API server. A nil logger discards request logs.
func NewServer(s store.Store, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{store: s, logger: logger, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))

	r.Get("/health", s.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.With(BearerAuth(s.store)).Post("/logout", s.logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(s.store))

		r.Get("/team", s.listTeam)
		r.Post("/invite", s.invite)

		r.Route("/api/issues", func(r chi.Router) {
			r.Get("/", s.listIssues)
			r.Post("/", s.createIssue)
			r.Put("/{id}", s.updateIssue)
			r.Delete("/{id}", s.deleteIssue)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// fieldError is one entry of a 422 body.
type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// writeValidation answers 422 with {"detail": [{loc, msg, type}]}.
func writeValidation(w http.ResponseWriter, errs []fieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": errs})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeStoreError maps store errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, conflictMessage(err))
	default:
		s.logger.Error("store failure", "id", GetRequestID(r), "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// conflictMessage strips the sentinel suffix from a wrapped store error.
func conflictMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{store.ErrConflict, store.ErrInvalid} {
		msg = strings.TrimSuffix(msg, ": "+sentinel.Error())
	}
	return capitalize(msg)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Accounts ---

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	var errs []fieldError
	if req.Username == "" {
		errs = append(errs, missing("username"))
	}
	if req.Email == "" {
		errs = append(errs, missing("email"))
	} else if !strings.Contains(req.Email, "@") {
		errs = append(errs, fieldError{Loc: []string{"body", "email"}, Msg: "value is not a valid email address", Type: "value_error"})
	}
	if req.Password == "" {
		errs = append(errs, missing("password"))
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "password cannot be hashed: "+err.Error())
		return
	}

	u, err := s.store.Register(r.Context(), req.Username, req.Email, string(hash))
	if err != nil {
		s.writeStoreError(w, r, err, "user not found")
		return
	}
	s.logger.Info("user registered", "username", u.Username, "team_id", u.TeamID)
	writeJSON(w, http.StatusOK, u.User)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        models.User `json:"user"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	u, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeStoreError(w, r, err, "")
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token, err := s.store.CreateToken(r.Context(), u.ID)
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer", User: u.User})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteToken(r.Context(), bearerToken(r)); err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Team ---

type inviteRequest struct {
	Email string `json:"email"`
}

func (s *Server) invite(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeValidation(w, []fieldError{missing("email")})
		return
	}
	if u.TeamID.IsZero() {
		writeError(w, http.StatusBadRequest, "You do not belong to a team")
		return
	}

	m, err := s.store.CreateInvite(r.Context(), u.ID, req.Email)
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) listTeam(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.ListInvites(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// --- Issues ---

// issueRequest keeps status and priority as text so bad values produce a
// 422 rather than a decode failure.
type issueRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Tags        string     `json:"tags"`
	TeamID      models.ID  `json:"team_id"`
	AssignedTo  *models.ID `json:"assigned_to"`
}

// fields validates the request. Omitted status and priority take the
// defaults of a new issue.
func (req issueRequest) fields() (models.Fields, []fieldError) {
	f := models.DefaultFields()
	f.Title = req.Title
	f.Description = req.Description
	f.Tags = req.Tags
	f.AssignedTo = req.AssignedTo

	var errs []fieldError
	if strings.TrimSpace(req.Title) == "" {
		errs = append(errs, missing("title"))
	}
	if req.Status != "" {
		st, err := models.ParseStatus(req.Status)
		if err != nil {
			errs = append(errs, fieldError{Loc: []string{"body", "status"}, Msg: err.Error(), Type: "enum"})
		}
		f.Status = st
	}
	if req.Priority != "" {
		p, err := models.ParsePriority(req.Priority)
		if err != nil {
			errs = append(errs, fieldError{Loc: []string{"body", "priority"}, Msg: err.Error(), Type: "enum"})
		}
		f.Priority = p
	}
	return f, errs
}

func missing(field string) fieldError {
	return fieldError{Loc: []string{"body", field}, Msg: "Field required", Type: "missing"}
}

func (s *Server) decodeIssue(w http.ResponseWriter, r *http.Request) (models.Fields, bool) {
	var req issueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return models.Fields{}, false
	}
	f, errs := req.fields()
	if len(errs) > 0 {
		writeValidation(w, errs)
		return models.Fields{}, false
	}
	return f, true
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.store.ListIssues(r.Context(), currentUser(r).TeamID)
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	f, ok := s.decodeIssue(w, r)
	if !ok {
		return
	}
	if u.TeamID.IsZero() {
		writeError(w, http.StatusBadRequest, "You do not belong to a team")
		return
	}
	f.TeamID = u.TeamID

	issue := &models.Issue{Fields: f, CreatedBy: models.IDPtr(u.ID)}
	if err := s.store.CreateIssue(r.Context(), issue); err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	id := models.ID(chi.URLParam(r, "id"))
	f, ok := s.decodeIssue(w, r)
	if !ok {
		return
	}

	issue, err := s.store.UpdateIssue(r.Context(), u.TeamID, id, f)
	if err != nil {
		s.writeStoreError(w, r, err, "Issue not found")
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	id := models.ID(chi.URLParam(r, "id"))

	if err := s.store.DeleteIssue(r.Context(), u.ID, id); err != nil {
		s.writeStoreError(w, r, err, fmt.Sprintf("Issue %s not found or not created by you", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
