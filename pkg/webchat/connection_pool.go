package webchat

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConnectionPool tracks websocket observers of the lifecycle feed. Each
// connection may restrict itself to one session id; an empty filter receives
// every event.
type ConnectionPool struct {
	mu    sync.Mutex
	conns map[wsConn]string
}

func NewConnectionPool() *ConnectionPool {
	return &ConnectionPool{conns: map[wsConn]string{}}
}

func (cp *ConnectionPool) Add(conn wsConn, sessionFilter string) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	cp.conns[conn] = sessionFilter
	cp.mu.Unlock()
}

func (cp *ConnectionPool) Remove(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	delete(cp.conns, conn)
	cp.mu.Unlock()
	_ = conn.Close()
}

// Broadcast writes data to every connection whose filter matches sessionID.
// Connections that fail a write are dropped.
func (cp *ConnectionPool) Broadcast(sessionID string, data []byte) int {
	if cp == nil || len(data) == 0 {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	sent := 0
	for conn, filter := range cp.conns {
		if filter != "" && filter != sessionID {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("component", "webchat").Str("session_id", sessionID).Msg("ws broadcast failed, dropping connection")
			delete(cp.conns, conn)
			_ = conn.Close()
			continue
		}
		sent++
	}
	return sent
}

func (cp *ConnectionPool) SendToOne(conn wsConn, data []byte) {
	if cp == nil || conn == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if _, ok := cp.conns[conn]; !ok {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("component", "webchat").Msg("ws send failed, dropping connection")
		delete(cp.conns, conn)
		_ = conn.Close()
	}
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	for conn := range cp.conns {
		_ = conn.Close()
		delete(cp.conns, conn)
	}
	cp.mu.Unlock()
}
