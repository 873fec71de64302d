package realtime

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens via the bearer middleware before the upgrade; origins are
	// handled by the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and ties the connection's lifecycle to the
// hub: subscribe on open, deterministic unsubscribe from every group on any
// exit path.
func ServeWS(hub *Hub, queueSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("id")
		date := c.Query("date")
		slot := c.Query("slot")
		if roomID == "" || date == "" || slot == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room, date and slot required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("realtime: upgrade failed: %v", err)
			return
		}

		sub := NewSubscriber(uuid.NewString(), queueSize)
		if _, err := hub.Subscribe(c.Request.Context(), sub, roomID, date, slot); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		go writePump(conn, sub, hub)
		go readPump(conn, sub, hub)
	}
}

// readPump discards client frames and watches for disconnect.
func readPump(conn *websocket.Conn, sub *Subscriber, hub *Hub) {
	defer teardown(conn, sub, hub)
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the subscriber queue onto the wire and keeps the
// connection alive with pings.
func writePump(conn *websocket.Conn, sub *Subscriber, hub *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer teardown(conn, sub, hub)
	for {
		select {
		case e := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.Done():
			return
		}
	}
}

func teardown(conn *websocket.Conn, sub *Subscriber, hub *Hub) {
	hub.Unsubscribe(sub)
	sub.Close()
	_ = conn.Close()
}
