package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/api"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/filestore"
	redisinfra "github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/realtime"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/worker"
)

const (
	travelDate   = "2030-01-15"
	holdTTL      = 30 * time.Second
	lockTTL      = 10 * time.Minute
	pollInterval = 20 * time.Millisecond
)

// TestServer はE2Eテスト用のサーバー
// Redisはminiredis、予約台帳は一時ディレクトリのファイル、カタログはdata/を使う
type TestServer struct {
	Echo  *echo.Echo
	Redis *miniredis.Miniredis
	URL   string
}

// NewTestServer はテスト用サーバーを作成
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cat, err := filestore.LoadCatalog("../data")
	require.NoError(t, err)
	ledger := filestore.NewLedger(t.TempDir())
	store := redisinfra.NewSeatLockStore(client)

	hub := realtime.NewHub()
	detector := worker.NewExpiryDetector(store, ledger, hub, pollInterval)

	seatService := application.NewSeatService(store, cat, ledger, redisinfra.NewSeatCache(client))
	lockService := application.NewSeatLockService(store, cat, ledger, holdTTL, lockTTL)
	lockService.SetBroadcaster(hub)
	lockService.SetReleaseObserver(detector)
	bookingService := application.NewBookingService(ledger, store, cat, seatService, "e2e-secret")
	bookingService.SetBroadcaster(hub)

	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e, "*")

	handler.RegisterRoutes(e, handler.Routes{
		Seats:    handler.NewSeatHandler(lockService, seatService),
		Bookings: handler.NewBookingHandler(bookingService),
		Catalog:  handler.NewCatalogHandler(seatService),
		Health:   handler.NewHealthHandler(),
		WebSocket: realtime.NewServer(hub, realtime.Services{
			Locks: lockService, Seats: seatService, Bookings: bookingService,
		}, "*"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		detector.Start(ctx)
	}()

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
		cancel()
		<-done
	})

	return &TestServer{Echo: e, Redis: mr, URL: srv.URL}
}

// Request はHTTPリクエストを送信する
func (s *TestServer) Request(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// Client はwebsocketクライアント
type Client struct {
	t    *testing.T
	conn *websocket.Conn
}

// Connect はwebsocketで接続する
func (s *TestServer) Connect(t *testing.T) *Client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &Client{t: t, conn: conn}
}

func (c *Client) Send(typ string, payload interface{}) {
	c.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(realtime.Envelope{Type: typ, Payload: raw}))
}

// Expect は条件に合うメッセージが届くまで読み進める
func (c *Client) Expect(typ string, match func(map[string]interface{}) bool) map[string]interface{} {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var env realtime.Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env), "%s が届かない", typ)
		if env.Type != typ {
			continue
		}
		var payload map[string]interface{}
		require.NoError(c.t, json.Unmarshal(env.Payload, &payload))
		if match == nil || match(payload) {
			return payload
		}
	}
}

func (c *Client) Join(busID, userID string) {
	c.t.Helper()
	c.Send(realtime.TypeJoin, map[string]string{"busId": busID, "userId": userID, "date": travelDate})
	c.Expect(realtime.TypeSnapshot, nil)
}

func (c *Client) Close() {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

func seatIs(seatID, status string) func(map[string]interface{}) bool {
	return func(p map[string]interface{}) bool {
		return p["seatId"] == seatID && (status == "" || p["status"] == status)
	}
}

func seatStatus(t *testing.T, s *TestServer, busID, seatID, userID string) string {
	t.Helper()
	rec := s.Request(http.MethodGet, "/api/buses/"+busID+"/seats?date="+travelDate+"&userId="+userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var seats []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &seats))
	for _, st := range seats {
		if st["id"] == seatID {
			return st["status"].(string)
		}
	}
	t.Fatalf("座席 %s が見つからない", seatID)
	return ""
}
