package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/benmeehan/shipment-tracker/pkg/file"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	// DefaultStaticAddr serves the map page.
	DefaultStaticAddr = ":8000"
	// DefaultStaticDir holds the map page and its assets.
	DefaultStaticDir = "map_server"
)

// StaticService serves the map page from a directory and exposes health and
// metrics endpoints next to it.
type StaticService struct {
	addr        string
	dir         string
	fileClient  file.FileOperations
	engine      EngineStatus
	subscribers SubscriberCounter
	logger      zerolog.Logger

	server   *http.Server
	listener net.Listener
}

type healthResponse struct {
	Status      string `json:"status"`
	Tracker     string `json:"tracker"`
	Barcode     string `json:"barcode,omitempty"`
	Subscribers int    `json:"subscribers"`
}

// NewStaticService creates the static content server.
func NewStaticService(addr, dir string, fileClient file.FileOperations, engine EngineStatus,
	subs SubscriberCounter, logger zerolog.Logger) *StaticService {
	if addr == "" {
		addr = DefaultStaticAddr
	}
	if dir == "" {
		dir = DefaultStaticDir
	}
	return &StaticService{
		addr:        addr,
		dir:         dir,
		fileClient:  fileClient,
		engine:      engine,
		subscribers: subs,
		logger:      logger,
	}
}

// Handler builds the echo router.
func (s *StaticService) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.Static("/", s.dir)
	return e
}

// Start creates the content directory and begins serving.
func (s *StaticService) Start() error {
	if s.server != nil {
		s.logger.Warn().Msg("StaticService is already running")
		return errors.New("static service is already running")
	}

	if err := s.fileClient.EnsureDir(s.dir); err != nil {
		s.logger.Error().Err(err).Str("dir", s.dir).Msg("Failed to create static directory")
		return err
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error().Err(err).Str("addr", s.addr).Msg("Failed to listen for static content")
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = ln
	s.server = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Static server stopped unexpectedly")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Str("dir", s.dir).Msg("StaticService started")
	return nil
}

// Stop shuts the server down.
func (s *StaticService) Stop() error {
	if s.server == nil {
		s.logger.Warn().Msg("StaticService is not running")
		return errors.New("static service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)

	s.server = nil
	s.listener = nil
	s.logger.Info().Msg("StaticService stopped")
	return err
}

// Addr returns the bound address, or nil before Start.
func (s *StaticService) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *StaticService) health(c echo.Context) error {
	resp := healthResponse{
		Status:      "ok",
		Tracker:     s.engine.State(),
		Subscribers: s.subscribers.Count(),
	}
	if credential, ok := s.engine.Current(); ok {
		resp.Barcode = credential.Barcode
	}
	return c.JSON(http.StatusOK, resp)
}
