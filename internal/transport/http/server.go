package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/services"
)

// Server is the thin HTTP adapter over the gateway core. It exposes
// exactly the four operations the transport boundary needs: submit a
// command, read cached state, read liveness, and relay state-change
// events as a server push stream.
type Server struct {
	listenAddr string

	dispatcher *services.DispatcherService
	cache      *services.StateCache
	liveness   *services.LivenessService
	fanout     *services.Fanout
	logger     zerolog.Logger

	httpServer *http.Server
}

// NewServer initializes the HTTP adapter.
func NewServer(listenAddr string, dispatcher *services.DispatcherService, cache *services.StateCache,
	liveness *services.LivenessService, fanout *services.Fanout, logger zerolog.Logger) *Server {

	return &Server{
		listenAddr: listenAddr,
		dispatcher: dispatcher,
		cache:      cache,
		liveness:   liveness,
		fanout:     fanout,
		logger:     logger,
	}
}

// Start begins serving in a separate goroutine.
func (s *Server) Start() error {
	if s.httpServer != nil {
		s.logger.Warn().Msg("HTTP server is already running")
		return errors.New("http server is already running")
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/control/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/control", s.handleControl).Methods(http.MethodPost)
	router.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: router,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server terminated unexpectedly")
		}
	}()

	s.logger.Info().Str("addr", s.listenAddr).Msg("HTTP server started successfully")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		s.logger.Warn().Msg("HTTP server is not running")
		return errors.New("http server is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.httpServer = nil
	if err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown failed")
		return err
	}

	s.logger.Info().Msg("HTTP server stopped successfully")
	return nil
}
