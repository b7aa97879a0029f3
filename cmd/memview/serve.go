package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/memview/internal/inspect"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for inspector sessions",
	Long: `Start an HTTP server that runs inspector commands. Every session owns
its own memory and libraries. Idle sessions are closed after the session
TTL.

Endpoints:
  POST   /execute              Run commands in a fresh session
  POST   /sessions             Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/exec   Run commands in session (memory persists)
  DELETE /sessions/{id}        Close session
  GET    /health               Health check

Sessions cannot snapshot or restore unless --files (or serve.files in the
config) names a directory; paths are then resolved inside it.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config: 8080)")
	serveCmd.Flags().Duration("session-ttl", 0, "Idle session lifetime (default from config: 15m)")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Default execution timeout")
	serveCmd.Flags().String("files", "", "Directory for session snapshots (default from config: none)")
	rootCmd.AddCommand(serveCmd)
}

// openFunc opens a session writing its output to out.
type openFunc func(ctx context.Context, out io.Writer) (*session, error)

// serveOpener opens sessions whose file access is confined to dir, or
// turned off when dir is empty.
func serveOpener(dir string) openFunc {
	return func(ctx context.Context, out io.Writer) (*session, error) {
		return openSession(ctx, out, inspect.WithFiles(dir))
	}
}

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.Mutex
	ttl      time.Duration
	open     openFunc
	log      *slog.Logger
}

type serverSession struct {
	*session
	mu       sync.Mutex
	out      bytes.Buffer
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration, open openFunc, log *slog.Logger) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		open:     open,
		log:      log,
	}
}

func (sm *sessionManager) create(ctx context.Context) (string, error) {
	ss := &serverSession{lastUsed: time.Now()}
	s, err := sm.open(ctx, &ss.out)
	if err != nil {
		return "", err
	}
	ss.session = s

	id := uuid.NewString()
	sm.mu.Lock()
	sm.sessions[id] = ss
	sm.mu.Unlock()
	sm.log.Info("session created", "id", id)
	return id, nil
}

func (sm *sessionManager) get(id string) (*serverSession, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ss, ok := sm.sessions[id]
	if ok {
		ss.lastUsed = time.Now()
	}
	return ss, ok
}

func (sm *sessionManager) close(ctx context.Context, id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if ok {
		sm.closeSession(ctx, id, ss)
	}
	return ok
}

func (sm *sessionManager) closeSession(ctx context.Context, id string, ss *serverSession) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if err := ss.Close(ctx); err != nil {
		sm.log.Warn("closing session", "id", id, "error", err)
	}
}

// expire closes the sessions idle since before now minus the TTL.
func (sm *sessionManager) expire(ctx context.Context, now time.Time) int {
	sm.mu.Lock()
	idle := make(map[string]*serverSession)
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			idle[id] = ss
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for id, ss := range idle {
		sm.closeSession(ctx, id, ss)
		sm.log.Info("session expired", "id", id)
	}
	return len(idle)
}

func (sm *sessionManager) cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sm.expire(ctx, now)
		}
	}
}

func (sm *sessionManager) closeAll(ctx context.Context) {
	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()
	for id, ss := range all {
		sm.closeSession(ctx, id, ss)
	}
}

func (sm *sessionManager) count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// run executes commands and returns what they printed, including output
// of the lines before a failing one.
func (ss *serverSession) run(ctx context.Context, commands string) (string, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.out.Reset()
	err := ss.sh.Run(ctx, strings.NewReader(commands))
	return ss.out.String(), err
}

type executeRequest struct {
	Commands string `json:"commands"`
	Timeout  string `json:"timeout,omitempty"`
}

type executeResponse struct {
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type server struct {
	sessions *sessionManager
	timeout  time.Duration
	log      *slog.Logger
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.execute)
	mux.HandleFunc("POST /sessions", s.createSession)
	mux.HandleFunc("POST /sessions/{id}/exec", s.sessionExec)
	mux.HandleFunc("DELETE /sessions/{id}", s.closeSession)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

var errCommandsRequired = errors.New("commands required")

func (s *server) decode(r *http.Request) (executeRequest, context.Context, context.CancelFunc, error) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, nil, nil, fmt.Errorf("invalid json: %w", err)
	}
	if req.Commands == "" {
		return req, nil, nil, errCommandsRequired
	}
	timeout := s.timeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			return req, nil, nil, fmt.Errorf("timeout: %w", err)
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	return req, ctx, cancel, nil
}

func (s *server) execute(w http.ResponseWriter, r *http.Request) {
	req, ctx, cancel, err := s.decode(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cancel()

	start := time.Now()
	var out bytes.Buffer
	sess, err := s.sessions.open(ctx, &out)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to open session: %v", err), http.StatusInternalServerError)
		return
	}
	runErr := sess.sh.Run(ctx, strings.NewReader(req.Commands))
	if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn("closing session", "error", err)
	}
	writeResult(w, out.String(), time.Since(start), runErr)
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.create(context.WithoutCancel(r.Context()))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create session: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(createSessionResponse{SessionID: id})
}

func (s *server) sessionExec(w http.ResponseWriter, r *http.Request) {
	ss, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	req, ctx, cancel, err := s.decode(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cancel()

	start := time.Now()
	out, runErr := ss.run(ctx, req.Commands)
	writeResult(w, out, time.Since(start), runErr)
}

func (s *server) closeSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.close(r.Context(), r.PathValue("id")) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeResult(w http.ResponseWriter, output string, d time.Duration, err error) {
	resp := executeResponse{
		Output:     output,
		DurationMs: d.Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func runServe(cmd *cobra.Command, _ []string) error {
	port, _ := cmd.Flags().GetInt("port")
	ttl, _ := cmd.Flags().GetDuration("session-ttl")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	files, _ := cmd.Flags().GetString("files")
	if files == "" {
		files = app.cfg.Serve.Files
	}
	if port == 0 {
		port = app.cfg.Serve.Port
	}
	if ttl == 0 {
		ttl = app.cfg.SessionTTL
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sessions := newSessionManager(ttl, serveOpener(files), app.log)
	defer sessions.closeAll(context.WithoutCancel(ctx))
	go sessions.cleanup(ctx, time.Minute)

	srv := &server{sessions: sessions, timeout: timeout, log: app.log}
	addr := fmt.Sprintf(":%d", port)
	fmt.Fprintf(cmd.ErrOrStderr(), "memview server listening on %s\n", addr)
	return http.ListenAndServe(addr, srv.handler())
}
