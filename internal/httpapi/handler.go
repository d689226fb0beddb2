package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"microsight/dashboard-service/internal/apperr"
	"microsight/dashboard-service/internal/auth"
	"microsight/dashboard-service/internal/guard"
	"microsight/dashboard-service/internal/models"
	"microsight/dashboard-service/internal/nav"
	"microsight/dashboard-service/internal/sensors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultClientCookie = "mpd_client"
	clientHeader        = "X-Client-ID"
)

// Notifier pushes notices and navigation to a client's realtime channel.
type Notifier interface {
	Notify(clientID string, notice apperr.Notice)
	Navigate(clientID string, n nav.Navigation)
}

type SensorSource interface {
	Snapshot() sensors.Snapshot
}

type Options struct {
	Router       *guard.Router
	Sensors      SensorSource
	Notifier     Notifier
	ClientCookie string
	Logger       *zap.Logger
}

type Handler struct {
	clients  *Registry
	router   *guard.Router
	sensors  SensorSource
	notifier Notifier
	cookie   string
	logger   *zap.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	From     string `json:"from"`
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Role            string `json:"role"`
	StaffID         string `json:"staff_id"`
	Department      string `json:"department"`
	Position        string `json:"position"`
	Institution     string `json:"institution"`
}

type sessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *userInfo       `json:"user,omitempty"`
	Token         string          `json:"token,omitempty"`
	Navigation    *nav.Navigation `json:"navigation,omitempty"`
	Notice        *apperr.Notice  `json:"notice,omitempty"`
}

type userInfo struct {
	UserID  string          `json:"user_id"`
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Role    string          `json:"role"`
	Profile *models.Profile `json:"profile,omitempty"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func NewHandler(clients *Registry, opts Options) *Handler {
	if opts.Router == nil {
		opts.Router = guard.NewRouter(guard.DefaultGracePeriod)
	}
	if opts.ClientCookie == "" {
		opts.ClientCookie = DefaultClientCookie
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		clients:  clients,
		router:   opts.Router,
		sensors:  opts.Sensors,
		notifier: opts.Notifier,
		cookie:   opts.ClientCookie,
		logger:   opts.Logger,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/signup", h.handleSignup)
	mux.HandleFunc("/api/auth/google", h.handleGoogle)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/routes/resolve", h.handleResolve)
	mux.HandleFunc("/api/sensors", h.handleSensors)
	mux.HandleFunc("/dashboard", h.handleDashboard)
	mux.HandleFunc("/dashboard/", h.handleDashboard)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	client, ok := h.client(w, r)
	if !ok {
		return
	}

	result, err := client.Auth.Login(r.Context(), auth.LoginInput{
		Identifier:    req.Email,
		Secret:        req.Password,
		RequestedRole: req.Role,
	})
	if err != nil {
		h.writeFailure(w, client.ID, err, result.Notice)
		return
	}
	if target, ok := h.router.SafeReturn(req.From, guard.StateOf(client.Sessions)); ok {
		result.Navigation = nav.Replace(target)
	}
	h.writeSessionChange(w, client, result)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	client, ok := h.client(w, r)
	if !ok {
		return
	}

	result, err := client.Auth.Signup(r.Context(), auth.SignupInput{
		Email:         req.Email,
		Secret:        req.Password,
		ConfirmSecret: req.ConfirmPassword,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Role:          req.Role,
		Profile: models.Profile{
			StaffID:     req.StaffID,
			Department:  req.Department,
			Position:    req.Position,
			Institution: req.Institution,
		},
	})
	if err != nil {
		h.writeFailure(w, client.ID, err, result.Notice)
		return
	}
	h.writeSessionChange(w, client, result)
}

func (h *Handler) handleGoogle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	result, err := client.Auth.LoginWithGoogle(r.Context())
	if err != nil {
		h.writeFailure(w, client.ID, err, result.Notice)
		return
	}
	h.writeSessionChange(w, client, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	result, err := client.Auth.Logout(r.Context())
	if err != nil {
		h.writeFailure(w, client.ID, err, result.Notice)
		return
	}
	h.writeSessionChange(w, client, result)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	sess, ok := client.Sessions.Get()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not signed in")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: newUserInfo(sess), Token: sess.Token})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requested := strings.TrimSpace(r.URL.Query().Get("path"))
	if requested == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.router.Resolve(requested, guard.StateOf(client.Sessions)))
}

func (h *Handler) handleSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	if _, ok := client.Sessions.Get(); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not signed in")
		return
	}
	if h.sensors == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "sensor feed unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.sensors.Snapshot())
}

// handleDashboard serves the guarded views. A denied request answers 403
// right away and the redirect to the role dashboard follows on the realtime
// channel after the grace period, unless another view is requested first.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	client, ok := h.client(w, r)
	if !ok {
		return
	}

	requested := r.URL.RequestURI()
	res := h.router.Resolve(requested, guard.StateOf(client.Sessions))
	if route, ok := h.router.Match(r.URL.Path); ok && !route.Public && res.Action != guard.ActionRedirect {
		client.Guard.Evaluate(requested, route.Allowed, h.navigator(client.ID))
	} else {
		client.Guard.Cancel()
	}

	switch res.Action {
	case guard.ActionRedirect:
		location := res.Location
		if res.Decision.Outcome == guard.RedirectLogin && res.Decision.ReturnTo != "" {
			location = nav.LoginPath + "?from=" + url.QueryEscape(res.Decision.ReturnTo)
		}
		status := http.StatusSeeOther
		if res.Permanent {
			status = http.StatusMovedPermanently
		}
		http.Redirect(w, r, location, status)
	case guard.ActionDenied:
		h.push(client.ID, apperr.Notice{Level: apperr.LevelError, Message: guard.DeniedMessage}, nav.Navigation{})
		w.Header().Set("Refresh", fmt.Sprintf("%g;url=%s", float64(res.GraceMillis)/1000, res.Location))
		writeJSON(w, http.StatusForbidden, res)
	case guard.ActionLoading:
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusAccepted, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// client identifies the caller by header or cookie and issues a new id when
// neither carries a valid one.
func (h *Handler) client(w http.ResponseWriter, r *http.Request) (*Client, bool) {
	id := h.clientID(r)
	if id == "" {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	client, err := h.clients.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("load client", zap.String("client_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return nil, false
	}
	return client, true
}

func (h *Handler) clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(clientHeader)); isValidUUID(id) {
		return id
	}
	if cookie, err := r.Cookie(h.cookie); err == nil && isValidUUID(cookie.Value) {
		return cookie.Value
	}
	return ""
}

func (h *Handler) navigator(clientID string) func(nav.Navigation) {
	if h.notifier == nil {
		return nil
	}
	return func(n nav.Navigation) { h.notifier.Navigate(clientID, n) }
}

func (h *Handler) push(clientID string, notice apperr.Notice, n nav.Navigation) {
	if h.notifier == nil {
		return
	}
	h.notifier.Notify(clientID, notice)
	h.notifier.Navigate(clientID, n)
}

// writeSessionChange drops any denied redirect still pending for the
// previous session before answering.
func (h *Handler) writeSessionChange(w http.ResponseWriter, client *Client, result auth.Result) {
	client.Guard.Cancel()
	h.writeResult(w, client.ID, result)
}

func (h *Handler) writeResult(w http.ResponseWriter, clientID string, result auth.Result) {
	h.push(clientID, result.Notice, result.Navigation)
	resp := sessionResponse{Notice: &result.Notice}
	if !result.Navigation.IsZero() {
		resp.Navigation = &result.Navigation
	}
	if result.Session.UserID != "" || result.Session.Email != "" {
		resp.Authenticated = true
		resp.User = newUserInfo(result.Session)
		resp.Token = result.Session.Token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeFailure(w http.ResponseWriter, clientID string, err error, notice apperr.Notice) {
	if notice.IsZero() {
		notice = apperr.NoticeFor(err, "")
	}
	h.push(clientID, notice, nav.Navigation{})

	status := apperr.HTTPStatus(err)
	code := apperr.CodeOf(err)
	if code == "" {
		code = "internal_error"
	}
	var field string
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		field = appErr.Field
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("operation failed", zap.String("client_id", clientID), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: notice.Message, Field: field}})
}

func newUserInfo(s models.Session) *userInfo {
	info := &userInfo{UserID: s.UserID, Email: s.Email, Name: s.DisplayName, Role: string(s.Role)}
	if !s.Profile.IsZero() {
		profile := s.Profile
		info.Profile = &profile
	}
	return info
}

// decodeJSON accepts an empty body as an empty request.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
