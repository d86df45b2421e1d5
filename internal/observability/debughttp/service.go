// Package debughttp serves quietq's optional local HTTP endpoint: liveness,
// a JSON status snapshot, Prometheus metrics and (when enabled) pprof.
package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"quietq/internal/runtime/supervisor"
	logx "quietq/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// Config controls the server. Binding to a non-loopback address requires a
// Token or AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
}

// StatusFunc returns a JSON-encodable snapshot for /status.
type StatusFunc func(ctx context.Context) (any, error)

var ErrInsecureBind = errors.New("debug http: non-loopback addr requires token or allow_insecure")

type Service struct {
	status  StatusFunc
	metrics http.Handler
	log     logx.Logger

	mu   sync.Mutex
	cfg  Config
	sup  *supervisor.Supervisor
	addr string
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, status: status, log: log.With(logx.String("comp", "debughttp"))}
}

// SetMetrics mounts h at /metrics. Call before Start.
func (s *Service) SetMetrics(h http.Handler) {
	s.mu.Lock()
	s.metrics = h
	s.mu.Unlock()
}

// Addr is the bound listen address, empty when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Supervisor returns the serve loop's supervisor (nil when stopped).
func (s *Service) Supervisor() *supervisor.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Reconfigure applies cfg and starts, stops or restarts the server as needed.
// Safe to call during hot reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	// Optional; a broken debug endpoint never takes the app down.
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log), supervisor.WithCancelOnError(false))
	s.sup.GoRestart("http.serve", s.serveOnce,
		supervisor.WithPublishFirstError(true),
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, ErrInsecureBind) {
		s.log.Warn("debug http stop", logx.Err(err))
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			s.log.Error("debug http refused to start", logx.String("addr", addr), logx.Err(ErrInsecureBind))
			return ErrInsecureBind
		}
		s.log.Warn("debug http running without token on non-loopback addr", logx.String("addr", addr))
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.addr = ""
		s.mu.Unlock()
	}()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("debug http started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cfg.Pprof), logx.Bool("token_set", cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("debug http server exited unexpectedly")
	}
	return err
}

// Handler builds the mux for cfg.
func (s *Service) Handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.Handler { return withAuth(cfg.Token, h) }

	mux.Handle("GET /healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.Handle("GET /status", wrap(s.serveStatus))
	s.mu.Lock()
	metrics := s.metrics
	s.mu.Unlock()
	if metrics != nil {
		mux.Handle("GET /metrics", wrap(metrics.ServeHTTP))
	}

	if cfg.Pprof {
		mux.Handle("/debug/pprof/", wrap(hpprof.Index))
		mux.Handle("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
		mux.Handle("/debug/pprof/profile", wrap(hpprof.Profile))
		mux.Handle("/debug/pprof/symbol", wrap(hpprof.Symbol))
		mux.Handle("/debug/pprof/trace", wrap(hpprof.Trace))
	}
	return mux
}

func (s *Service) serveStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "no status", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	v, err := s.status(ctx)
	if err != nil {
		s.log.Warn("status snapshot failed", logx.Err(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				got = strings.TrimSpace(ah)
			}
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	})
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
