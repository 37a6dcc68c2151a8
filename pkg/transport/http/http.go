package http

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tarun-engg-dpm/offerings/pkg/claims"
)

type Options struct {
	ListenAddr string
}

type Option func(*Options)

func WithListen(addr string) Option {
	return func(o *Options) {
		o.ListenAddr = addr
	}
}

type Server struct {
	logger *logrus.Logger
	server *http.Server
}

func New(
	claimsService *claims.Service,
	logger *logrus.Logger,
	registerer prometheus.Registerer,
	opts ...Option) *Server {

	options := Options{ListenAddr: ":8082"}
	for _, opt := range opts {
		opt(&options)
	}

	mw := NewMetricsMiddleware(registerer)
	h := &claimsHandler{claims: claimsService, logger: logger}

	router := httprouter.New()
	router.HandlerFunc(http.MethodPost, "/v1/claims", mw.Handler("claims", h.handleClaim))
	router.HandlerFunc(http.MethodPost, "/v1/claims/raw", mw.Handler("claims_raw", h.handleRawClaim))
	router.HandlerFunc(http.MethodGet, "/healthz", handleHealth)

	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:    options.ListenAddr,
			Handler: router,
		},
	}
}

func (s *Server) Start() error {
	s.logger.Infof("http server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Errorf("http server shutdown: %v", err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
