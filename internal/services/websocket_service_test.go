package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/internal/subscribers"
	"github.com/benmeehan/shipment-tracker/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSetter struct {
	mu          sync.Mutex
	credentials []models.Credential
}

func (f *fakeSetter) SetCredential(credential models.Credential) error {
	f.mu.Lock()
	f.credentials = append(f.credentials, credential)
	f.mu.Unlock()
	return nil
}

func (f *fakeSetter) received() []models.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Credential(nil), f.credentials...)
}

func startWebsocketService(t *testing.T) (*WebsocketService, *subscribers.Registry, *fakeSetter) {
	t.Helper()
	pool := utils.NewWorkerPool(2)
	t.Cleanup(pool.Shutdown)
	registry := subscribers.NewRegistry(pool, zerolog.Nop())
	setter := &fakeSetter{}

	svc := NewWebsocketService("127.0.0.1:0", time.Second, registry, setter, zerolog.Nop())
	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })
	return svc, registry, setter
}

func dial(t *testing.T, svc *WebsocketService) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+svc.Addr().String()+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebsocketService_ControlMessage_SetsCredential(t *testing.T) {
	svc, registry, setter := startWebsocketService(t)
	conn := dial(t, svc)

	require.Eventually(t, func() bool { return registry.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"token":"t1","barcode":"b1"}`)))
	require.Eventually(t, func() bool { return len(setter.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.Credential{Token: "t1", Barcode: "b1"}, setter.received()[0])
}

// TestWebsocketService_MalformedMessage_KeepsConnection checks that bad
// messages are dropped without closing the connection.
func TestWebsocketService_MalformedMessage_KeepsConnection(t *testing.T) {
	svc, registry, setter := startWebsocketService(t)
	conn := dial(t, svc)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"token":"only"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"token":"t2","barcode":"b2"}`)))

	require.Eventually(t, func() bool { return len(setter.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.Credential{Token: "t2", Barcode: "b2"}, setter.received()[0])
	assert.Equal(t, 1, registry.Count())
}

func TestWebsocketService_ListenOnlySubscriber_ReceivesBroadcast(t *testing.T) {
	svc, registry, _ := startWebsocketService(t)
	first := dial(t, svc)
	second := dial(t, svc)
	require.Eventually(t, func() bool { return registry.Count() == 2 }, time.Second, 5*time.Millisecond)

	delivered := registry.Broadcast(context.Background(), models.LocationEvent{
		Coordinate: models.Coordinate{Latitude: 42.1, Longitude: 23.2},
		ObservedAt: time.Now(),
	})
	assert.Equal(t, 2, delivered)

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame models.LocationFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		assert.Equal(t, models.LocationFrame{Lat: 42.1, Lng: 23.2}, frame)
	}
}

func TestWebsocketService_Disconnect_RemovesSubscriber(t *testing.T) {
	svc, registry, _ := startWebsocketService(t)
	conn := dial(t, svc)
	require.Eventually(t, func() bool { return registry.Count() == 1 }, time.Second, 5*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	require.Eventually(t, func() bool { return registry.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebsocketService_Stop_ClosesSubscribers(t *testing.T) {
	svc, registry, _ := startWebsocketService(t)
	conn := dial(t, svc)
	require.Eventually(t, func() bool { return registry.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, registry.Count())

	assert.EqualError(t, svc.Stop(), "websocket service is not running")
}

// TestWebsocketService_StartStop_Immediate stops the service before the serve
// goroutine has had a chance to run.
func TestWebsocketService_StartStop_Immediate(t *testing.T) {
	pool := utils.NewWorkerPool(1)
	t.Cleanup(pool.Shutdown)
	svc := NewWebsocketService("127.0.0.1:0", time.Second, subscribers.NewRegistry(pool, zerolog.Nop()), &fakeSetter{}, zerolog.Nop())

	for i := 0; i < 100; i++ {
		require.NoError(t, svc.Start())
		require.NoError(t, svc.Stop())
	}
}

func TestWebsocketService_OversizedMessage_KeepsConnection(t *testing.T) {
	svc, registry, setter := startWebsocketService(t)
	conn := dial(t, svc)

	oversized := []byte(`{"token":"` + strings.Repeat("x", 64*1024) + `"`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, oversized))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"token":"t3","barcode":"b3"}`)))

	require.Eventually(t, func() bool { return len(setter.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.Credential{Token: "t3", Barcode: "b3"}, setter.received()[0])
	assert.Equal(t, 1, registry.Count())
}

func TestWebsocketService_Stopping_RejectsNewConnections(t *testing.T) {
	svc, registry, _ := startWebsocketService(t)

	svc.mu.Lock()
	svc.stopping = true
	svc.mu.Unlock()

	conn := dial(t, svc)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()

	assert.Error(t, err)
	assert.Equal(t, 0, registry.Count())
}
