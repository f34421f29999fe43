package server

import (
	"context"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/objex-dev/objex/internal/config"
	"github.com/objex-dev/objex/internal/exchange"
)

// HeaderSubscriberID carries the caller's subscriber token.
const HeaderSubscriberID = "X-SubscriberId"

type Server struct {
	cfg       *config.Config
	registry  *exchange.Registry
	validate  *validator.Validate
	httpSrv   *http.Server
	startTime time.Time
}

func New(cfg *config.Config, registry *exchange.Registry) *Server {
	v := validator.New()
	// Report fields by their wire name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		cfg:       cfg,
		registry:  registry,
		validate:  v,
		startTime: time.Now(),
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /-/health", s.handleHealth)

	mux.HandleFunc("POST /{$}", s.handleCreateChannel)
	mux.HandleFunc("POST /{channel_id}", s.handleJoin)
	mux.HandleFunc("PUT /{channel_id}", s.handlePublish)
	mux.HandleFunc("GET /{channel_id}", s.handlePoll)
	mux.HandleFunc("GET /{channel_id}/stream", s.handleStream)

	var handler http.Handler = mux
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)

	return handler
}

func (s *Server) Start() error {
	log.Printf("objex listening on %s (dev=%v, poll_timeout=%s)", s.cfg.Server.Listen, s.cfg.Dev, s.cfg.Exchange.PollTimeout)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
