// Package devserver is an in-memory reference backend for the showroom HTTP
// API. It backs local development and the client tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/showroom/internal/chat"
)

const (
	maxUpload     = 25 << 20
	defaultURLTTL = 10 * time.Minute
	defaultPing   = 15 * time.Second
	presenceKey   = "presence"
)

// Options configure a Server.
type Options struct {
	// Secret signs bearer tokens and file URLs.
	Secret   []byte
	Channels []chat.ChannelPerms
	Users    []User
	// DMExpiry drops DM messages older than this. Zero keeps them.
	DMExpiry time.Duration
	URLTTL   time.Duration
	// Ping is the SSE keepalive interval.
	Ping time.Duration
	// PublicURL prefixes resolved file URLs. Defaults to the request host.
	PublicURL string
	Verbose   bool
	Logger    *zap.Logger
	// Now is the clock; tests override it.
	Now func() time.Time
}

// Server implements the HTTP API over in-memory state.
type Server struct {
	opts     Options
	state    *state
	hub      *hub
	validate *validator.Validate
	logger   *zap.Logger
	router   chi.Router
}

// New builds a server. It fails without a secret.
func New(opts Options) (*Server, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("devserver: secret is required")
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = defaultURLTTL
	}
	if opts.Ping <= 0 {
		opts.Ping = defaultPing
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:     opts,
		state:    newState(opts.Channels, opts.Users),
		hub:      newHub(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   opts.Logger,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Subscribers reports how many SSE clients follow t as seen by viewer.
func (s *Server) Subscribers(viewer string, t chat.Target) int {
	return s.hub.count(streamKey(viewer, t))
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.opts.Verbose {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/files", s.handleFile)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/showroom", func(r chi.Router) {
			r.Get("/channels", s.handleChannels)
			r.Get("/messages", s.handleHistory)
			r.Post("/messages", s.handleSend)
			r.Get("/stream", s.handleStream)
		})
		r.Get("/presence", s.handlePresence)
		r.Post("/presence", s.handleHeartbeat)
		r.Get("/presence/stream", s.handlePresenceStream)
		r.Post("/upload", s.handleUpload)
		r.Post("/storage/resolve", s.handleResolve)
		r.Get("/users/search", s.handleSearchUsers)

		r.Route("/admin/showroom", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/purge", s.handlePurge)
			r.Post("/lock", s.handleLock)
			r.Post("/mute", s.handleMute)
		})
	})
	return r
}

type identityKey struct{}

func identityFrom(ctx context.Context) chat.Identity {
	id, _ := ctx.Value(identityKey{}).(chat.Identity)
	return id
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := VerifyToken(s.opts.Secret, strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		id := claims.Identity()
		id.Email = strings.ToLower(id.Email)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// target resolves ?channel= or ?dm= and checks the caller may read it.
func (s *Server) target(w http.ResponseWriter, r *http.Request, channel, dm string) (chat.Target, bool) {
	id := identityFrom(r.Context())
	switch {
	case dm != "":
		dm = strings.ToLower(strings.TrimSpace(dm))
		if !strings.Contains(dm, "@") || dm == id.Email {
			writeError(w, http.StatusBadRequest, "invalid dm peer")
			return chat.Target{}, false
		}
		return chat.DM(dm), true
	case channel != "":
		slug := strings.ToLower(strings.TrimSpace(channel))
		perms, ok := s.state.channel(slug)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown channel")
			return chat.Target{}, false
		}
		if !perms.CanRead(id) {
			writeError(w, http.StatusForbidden, "channel is not readable")
			return chat.Target{}, false
		}
		return chat.Channel(slug), true
	default:
		writeError(w, http.StatusBadRequest, "channel or dm is required")
		return chat.Target{}, false
	}
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.channelList())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	t, ok := s.target(w, r, r.URL.Query().Get("channel"), r.URL.Query().Get("dm"))
	if !ok {
		return
	}
	id := identityFrom(r.Context())
	msgs := s.state.history(streamKey(id.Email, t), s.opts.DMExpiry, s.opts.Now())
	rows := make([]chat.Row, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, chat.RowFromMessage(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": rows})
}

type sendBody struct {
	Channel     string   `json:"channel" validate:"required_without=DM,omitempty,max=64"`
	DM          string   `json:"dm" validate:"omitempty,email"`
	Text        string   `json:"text" validate:"max=4000"`
	Attachments []string `json:"attachments" validate:"max=6,dive,required"`
	ClientID    string   `json:"clientId" validate:"omitempty,max=128"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body sendBody
	if !s.decode(w, r, &body) {
		return
	}
	t, ok := s.target(w, r, body.Channel, body.DM)
	if !ok {
		return
	}
	id := identityFrom(r.Context())
	now := s.opts.Now().UTC()
	if t.IsChannel() && !id.IsAdmin() {
		perms, _ := s.state.channel(t.Name)
		if perms.IsLocked(now) {
			writeError(w, http.StatusForbidden, "channel is locked")
			return
		}
		if s.state.muted(id.Email, t.Name, now) {
			writeError(w, http.StatusForbidden, "you are muted")
			return
		}
	}
	if chat.NormalizeText(body.Text) == "" && len(body.Attachments) == 0 {
		writeError(w, http.StatusBadRequest, "message is empty")
		return
	}

	msg := chat.Message{
		ID:          uuid.NewString(),
		ClientID:    body.ClientID,
		Text:        body.Text,
		UserName:    id.Name,
		UserEmail:   id.Email,
		CreatedAt:   now,
		Attachments: body.Attachments,
	}
	key := streamKey(id.Email, t)
	s.state.append(key, msg, s.opts.DMExpiry)
	row := chat.RowFromMessage(msg)
	s.broadcast(key, map[string]any{"action": "insert", "after": row})
	s.logger.Debug("message stored", zap.String("target", t.String()), zap.String("id", msg.ID))
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	t, ok := s.target(w, r, r.URL.Query().Get("channel"), r.URL.Query().Get("dm"))
	if !ok {
		return
	}
	s.serveSSE(w, r, streamKey(identityFrom(r.Context()).Email, t))
}

func (s *Server) handlePresence(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": s.state.roster()})
}

type heartbeatBody struct {
	Status string `json:"status" validate:"required,oneof=online idle dnd invisible offline"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var body heartbeatBody
	if !s.decode(w, r, &body) {
		return
	}
	delta := s.state.touch(identityFrom(r.Context()), body.Status, s.opts.Now().UTC())
	s.broadcast(presenceKey, map[string]any{"user": delta})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePresenceStream(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, presenceKey)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read file")
		return
	}
	scope := strings.Trim(path.Clean("/"+r.FormValue("path")), "/")
	if scope == "" {
		scope = "uploads"
	}
	name := path.Base(header.Filename)
	key := scope + "/" + uuid.NewString() + path.Ext(name)
	s.state.store(key, name, data)
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

type resolveBody struct {
	Keys       []string `json:"keys" validate:"required,max=100,dive,required"`
	TTLSeconds int      `json:"ttlSeconds" validate:"gte=0,lte=86400"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body resolveBody
	if !s.decode(w, r, &body) {
		return
	}
	ttl := s.opts.URLTTL
	if body.TTLSeconds > 0 {
		ttl = time.Duration(body.TTLSeconds) * time.Second
	}
	base := s.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	now := s.opts.Now()
	urls := make(map[string]string, len(body.Keys))
	for _, key := range body.Keys {
		if _, ok := s.state.file(key); !ok {
			continue
		}
		token, err := signFile(s.opts.Secret, key, ttl, now)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "sign url")
			return
		}
		urls[key] = strings.TrimRight(base, "/") + "/files?token=" + token
	}
	writeJSON(w, http.StatusOK, map[string]any{"urls": urls})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	key, err := verifyFile(s.opts.Secret, r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusForbidden, "invalid or expired link")
		return
	}
	f, ok := s.state.file(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no such file")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(f.data))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", f.name))
	_, _ = w.Write(f.data)
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": s.state.searchUsers(r.URL.Query().Get("q"), 20)})
}

type purgeBody struct {
	Channel string   `json:"channel" validate:"required"`
	IDs     []string `json:"ids" validate:"required,min=1,max=200,dive,required"`
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var body purgeBody
	if !s.decode(w, r, &body) {
		return
	}
	slug := strings.ToLower(body.Channel)
	if _, ok := s.state.channel(slug); !ok {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	key := chat.Channel(slug).Key()
	deleted := s.state.remove(key, body.IDs)
	for _, id := range deleted {
		s.broadcast(key, map[string]any{"action": "delete", "before": map[string]string{"id": id}})
	}
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

type lockBody struct {
	Channel string `json:"channel" validate:"required"`
	Locked  bool   `json:"locked"`
	Minutes int    `json:"minutes" validate:"gte=0,lte=10080"`
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var body lockBody
	if !s.decode(w, r, &body) {
		return
	}
	var until *time.Time
	if body.Locked && body.Minutes > 0 {
		t := s.opts.Now().UTC().Add(time.Duration(body.Minutes) * time.Minute)
		until = &t
	}
	perms, ok := s.state.setLock(strings.ToLower(body.Channel), body.Locked, until)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

type muteBody struct {
	Email   string `json:"email" validate:"required,email"`
	Channel string `json:"channel"`
	Minutes int    `json:"minutes" validate:"gte=0"`
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var body muteBody
	if !s.decode(w, r, &body) {
		return
	}
	var until time.Time
	if body.Minutes > 0 {
		until = s.opts.Now().Add(time.Duration(body.Minutes) * time.Minute)
	}
	s.state.mute(body.Email, strings.ToLower(body.Channel), until)
	w.WriteHeader(http.StatusNoContent)
}

// serveSSE streams everything published on key until the client leaves.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, key string) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("sse flush unsupported", zap.Error(err))
		return
	}

	events, unsub := s.hub.subscribe(key)
	defer unsub()
	ping := time.NewTicker(s.opts.Ping)
	defer ping.Stop()

	s.logger.Debug("sse subscriber joined", zap.String("key", key))
	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse subscriber left", zap.String("key", key))
			return
		case data := <-events:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode event", zap.Error(err))
		return
	}
	s.hub.publish(key, data)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s failed %s", strings.ToLower(verrs[0].Field()), verrs[0].Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
