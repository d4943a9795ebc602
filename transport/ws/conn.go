package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stream-chat/broadcast"
	"stream-chat/domain/event"
)

const writeDeadline = 5 * time.Second

// envelope is the wire form of every frame, in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundFrame struct {
	Type    string      `json:"type"`
	Payload event.Event `json:"payload"`
}

// conn owns one websocket. All writes go through the sink's channel so
// the gorilla connection only ever sees a single writer goroutine.
type conn struct {
	ws   *websocket.Conn
	sink *broadcast.BufferedSink
	once sync.Once
}

func newConn(ws *websocket.Conn, bufferSize int) *conn {
	return &conn{ws: ws, sink: broadcast.NewBufferedSink(bufferSize)}
}

func (c *conn) close() {
	c.once.Do(func() {
		c.sink.Close()
		_ = c.ws.Close()
	})
}

// writePump drains the sink until the channel is closed, serializing
// each event into its envelope.
func (c *conn) writePump(log *slog.Logger) {
	for e := range c.sink.Events() {
		data, err := json.Marshal(outboundFrame{Type: e.Name(), Payload: e})
		if err != nil {
			log.Error("Failed to marshal outbound frame", "type", e.Name(), "err", err)
			continue
		}
		if err := c.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
