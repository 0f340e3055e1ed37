package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/waveforge/wave/internal/config"
	"github.com/waveforge/wave/internal/events"
	"github.com/waveforge/wave/pkg/block"
)

// buildServeCmd starts an HTTP host exposing one /chat POST endpoint
// plus a /stream websocket that fans transcript events out to a remote
// UI, grounded on the teacher's wsControlPlane (the same
// bearer-then-upgrade authentication order, the same ping/tick
// keepalive shape) narrowed to this runtime's single-agent-per-process
// scope.
func buildServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP with a streaming websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), workdir, port)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
	return cmd
}

type server struct {
	agentMu  sync.Mutex
	cfg      *config.Config
	obs      observability
	upgrader websocket.Upgrader

	subsMu sync.Mutex
	subs   map[*websocket.Conn]struct{}
}

func runServe(ctx context.Context, workdir string, portFlag int) error {
	cfg, err := config.Load(workdir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}
	obs := buildObservability(cfg.Observability)

	srv := &server{
		cfg: cfg,
		obs: obs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*websocket.Conn]struct{}),
	}

	callbacks := events.Callbacks{
		OnAssistantMessageAdded: func(msg *block.Message) { srv.broadcast("chat.complete", msg) },
		OnToolBlockAdded: func(messageID string, tb *block.ToolBlock) {
			srv.broadcast("tool.added", map[string]any{"messageId": messageID, "tool": tb})
		},
		OnWarnMessageAdded: func(text string) { srv.broadcast("warn", text) },
	}

	agent, stopMCP, err := newAgent(ctx, cfg, obs, callbacks)
	if err != nil {
		return err
	}
	defer stopMCP()
	defer agent.Destroy()
	if obs.flush != nil {
		defer obs.flush(ctx)
	}
	defer startScheduler(ctx, cfg, agent)()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/chat", srv.authMiddleware(srv.handleChat(agent)))
	mux.Handle("/stream", srv.authMiddleware(srv.handleStream()))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}

	slog.Info("waveagent serving", "addr", addr)
	return httpServer.ListenAndServe()
}

// authMiddleware rejects requests lacking a valid bearer JWT, unless
// the server's JWT secret is empty (auth disabled, matching the
// teacher's auth.Service.Enabled() no-op-when-unconfigured convention).
func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.JWTSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(authHeader[len("bearer "):])
		if _, err := verifyToken(token, s.cfg.Server.JWTSecret); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type chatRequest struct {
	Text string `json:"text"`
}

func (s *server) handleChat(agent interface {
	SendMessage(ctx context.Context, text string, images []block.Image) (string, error)
}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		text, err := agent.SendMessage(r.Context(), req.Text, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}
}

func (s *server) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.subsMu.Lock()
		s.subs[conn] = struct{}{}
		s.subsMu.Unlock()
		defer func() {
			s.subsMu.Lock()
			delete(s.subs, conn)
			s.subsMu.Unlock()
			conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (s *server) broadcast(event string, payload any) {
	frame := map[string]any{"event": event, "payload": payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for conn := range s.subs {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

func verifyToken(token, secret string) (*jwt.Token, error) {
	return jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
}
