package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AndurilCode/mcp-apps-kit-sub001/auth"
	"github.com/AndurilCode/mcp-apps-kit-sub001/plugin"
)

type contextKey int

const (
	principalKey contextKey = iota
	transportKey
)

// PrincipalFromContext returns the authenticated principal attached by the
// bearer auth middleware, if any.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}

func transportFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(transportKey).(string); ok {
		return t
	}
	return "stdio"
}

// HTTPHandler returns the HTTP surface: the MCP streamable endpoint at /mcp,
// a liveness probe at /healthz, and the UI descriptor at /ui. When the
// application carries a token verifier, /mcp and /ui require a bearer token.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	mux.Handle("/mcp", s.requireAuth(streamable))
	mux.Handle("/ui", s.requireAuth(http.HandlerFunc(s.handleUI)))

	return markTransport(mux)
}

// Serve runs the HTTP surface on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func markTransport(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), transportKey, "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth verifies the bearer token when the application has a verifier.
// Without one the handler passes through unchanged.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	verifier := s.app.Verifier()
	if verifier == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeAuthError(w, "missing bearer token")
			return
		}

		principal, err := verifier.Verify(r.Context(), strings.TrimSpace(token))
		if err != nil {
			s.app.Logger().WarnContext(r.Context(), "token verification failed", "error", err)
			writeAuthError(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="appskit"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// uiDescriptor is the payload hosts fetch to render a tool picker.
type uiDescriptor struct {
	Name    string             `json:"name"`
	Version string             `json:"version,omitempty"`
	Tools   []uiToolDescriptor `json:"tools"`
}

type uiToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.app.PluginHost().OnUILoad(r.Context(), plugin.UILoadInfo{
		Resource: "ui://" + s.app.Name() + "/descriptor",
	})

	descriptor := uiDescriptor{
		Name:    s.app.Name(),
		Version: s.app.Version(),
	}
	for _, t := range s.app.Tools() {
		descriptor.Tools = append(descriptor.Tools, uiToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(descriptor); err != nil {
		s.app.Logger().ErrorContext(r.Context(), "writing UI descriptor", "error", err)
	}
}
