package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/metrics"
	"github.com/benmeehan/shipment-tracker/internal/subscribers"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// DefaultWebsocketAddr is where subscribers connect.
	DefaultWebsocketAddr = ":8765"
	// DefaultWriteTimeout bounds a single outbound frame.
	DefaultWriteTimeout = 5 * time.Second

	// Large enough that any oversized control message is still read whole
	// and rejected as malformed instead of tearing down the connection.
	maxMessageSize = 1 << 20
)

// WebsocketService accepts subscriber connections. Every connection is
// registered for location broadcasts and may send control messages carrying
// a new credential.
type WebsocketService struct {
	addr         string
	writeTimeout time.Duration
	registry     *subscribers.Registry
	supervisor   CredentialSetter
	parser       *ControlParser
	logger       zerolog.Logger

	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	mu       sync.Mutex
	stopping bool
	conns    map[*wsSubscriber]struct{}
	wg       sync.WaitGroup
}

// NewWebsocketService creates the subscriber endpoint.
func NewWebsocketService(addr string, writeTimeout time.Duration, registry *subscribers.Registry,
	supervisor CredentialSetter, logger zerolog.Logger) *WebsocketService {
	if addr == "" {
		addr = DefaultWebsocketAddr
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WebsocketService{
		addr:         addr,
		writeTimeout: writeTimeout,
		registry:     registry,
		supervisor:   supervisor,
		parser:       NewControlParser(),
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The map page is served from a different port.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*wsSubscriber]struct{}),
	}
}

// Start binds the listener and serves connections in the background.
func (s *WebsocketService) Start() error {
	if s.server != nil {
		s.logger.Warn().Msg("WebsocketService is already running")
		return errors.New("websocket service is already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error().Err(err).Str("addr", s.addr).Msg("Failed to listen for subscribers")
		return err
	}
	srv := &http.Server{
		Handler:           http.HandlerFunc(s.handleConnection),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = ln
	s.server = srv

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Websocket server stopped unexpectedly")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("WebsocketService started")
	return nil
}

// Stop closes the listener and every open subscriber connection.
func (s *WebsocketService) Stop() error {
	if s.server == nil {
		s.logger.Warn().Msg("WebsocketService is not running")
		return errors.New("websocket service is not running")
	}

	// Connections still being upgraded are turned away from here on.
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)

	// Shutdown does not touch hijacked connections.
	s.mu.Lock()
	for sub := range s.conns {
		_ = sub.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.server = nil
	s.listener = nil
	s.logger.Info().Msg("WebsocketService stopped")
	return err
}

// Addr returns the bound address, or nil before Start.
func (s *WebsocketService) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *WebsocketService) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error while upgrading websocket")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	sub := newWSSubscriber(conn, s.writeTimeout)
	log := s.logger.With().Str("subscriber_id", sub.ID()).Str("remote_addr", r.RemoteAddr).Logger()

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		log.Info().Msg("Rejecting subscriber, service is stopping")
		_ = sub.Close()
		return
	}
	s.conns[sub] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.registry.Remove(sub)
		_ = sub.Close()
		s.mu.Lock()
		delete(s.conns, sub)
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.registry.Add(sub)
	log.Info().Msg("Subscriber connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Subscriber connection closed unexpectedly")
			} else {
				log.Info().Msg("Subscriber disconnected")
			}
			return
		}
		s.handleMessage(log, message)
	}
}

// handleMessage applies one control message. Malformed messages are logged
// and dropped; the connection stays open.
func (s *WebsocketService) handleMessage(log zerolog.Logger, message []byte) {
	credential, err := s.parser.Parse(message)
	if err != nil {
		metrics.ControlMessagesTotal.WithLabelValues("malformed").Inc()
		log.Warn().Err(err).Msg("Ignoring control message")
		return
	}
	metrics.ControlMessagesTotal.WithLabelValues("accepted").Inc()

	log.Info().Str("barcode", credential.Barcode).Msg("Received new credential")
	if err := s.supervisor.SetCredential(credential); err != nil {
		log.Error().Err(err).Msg("Failed to apply credential")
	}
}

// wsSubscriber adapts a websocket connection to subscribers.Subscriber.
type wsSubscriber struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *wsSubscriber {
	return &wsSubscriber{
		id:           uuid.New().String(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (w *wsSubscriber) ID() string {
	return w.id
}

// Send writes one text frame. Writes are serialized per connection.
func (w *wsSubscriber) Send(payload []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a close frame and releases the connection. Safe to call more
// than once and concurrently with Send.
func (w *wsSubscriber) Close() error {
	w.closeOnce.Do(func() {
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
