package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shelfward/shelfward-server/registry"
)

// announceMessage is the first frame a client sends after connecting,
// claiming its identity for push purposes. The channel is same-origin and the
// upgrade already passed the session gate, so the claim is trusted.
type announceMessage struct {
	Name registry.Kind `json:"name"`
	ID   string        `json:"id"`
}

// wsTransport adapts a gorilla websocket connection to registry.Transport.
// Gorilla permits one concurrent writer, hence the write lock.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

var _ registry.Transport = (*wsTransport)(nil)

func (t *wsTransport) Send(message []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, message)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// WSHandler upgrades the connection, waits for the announce frame, registers
// the transport, then just holds the socket open. The connection carries no
// work loop beyond the announce and later pushed revocation events; the read
// loop below exists only to notice the peer going away.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the failure response.
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}

		var announce announceMessage
		if err := json.Unmarshal(raw, &announce); err != nil || !announce.Name.Valid() || announce.ID == "" {
			log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("invalid ws announce")
			_ = conn.Close()
			return
		}

		t := &wsTransport{conn: conn}
		s.conns.Register(announce.Name, announce.ID, t)
		log.Debug().
			Str("kind", string(announce.Name)).
			Str("principal_id", announce.ID).
			Msg("ws registered")

		// Drain until the socket closes, then prune. A superseded socket's
		// close does not evict its successor (Unregister compares handles).
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.conns.Unregister(announce.Name, announce.ID, t)
		_ = conn.Close()
	}
}
