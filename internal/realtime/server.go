package realtime

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/logger"
)

// Server はwebsocket接続を受け付ける http.Handler
type Server struct {
	hub        *Hub
	svc        Services
	upgrader   websocket.Upgrader
	bufferSize int
}

// NewServer は新しい Server を作成する
// allowedOrigins はカンマ区切りで、"*" または空の場合はすべて許可する
func NewServer(hub *Hub, svc Services, allowedOrigins string) *Server {
	return &Server{
		hub: hub,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		bufferSize: DefaultBufferSize,
	}
}

// SetBufferSize は購読ごとの送信バッファを変更する
func (s *Server) SetBufferSize(n int) {
	s.bufferSize = n
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		logger.Warn("websocketへのアップグレードに失敗", zap.Error(err))
		return
	}
	newSession(conn, s.hub, s.svc, s.bufferSize).Run(r.Context())
}

func originChecker(allowed string) func(*http.Request) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" || allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	origins := make(map[string]struct{})
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := origins[origin]
		return ok
	}
}
