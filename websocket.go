package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"

	"github.com/james226/scene-api/scene"
)

type TransportSettings struct {
	SendBufferSize int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
}

func DefaultTransportSettings() *TransportSettings {
	pongTimeout := 60 * time.Second
	return &TransportSettings{
		SendBufferSize: 64,
		WriteTimeout:   10 * time.Second,
		PongTimeout:    pongTimeout,
		PingInterval:   pongTimeout * 9 / 10,
		ReadLimit:      64 * 1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Websocket is a member connected over a websocket. Frames are written by a
// single goroutine in the order they were queued.
type Websocket struct {
	id          string
	ws          *websocket.Conn
	messageChan chan []byte
	closed      chan struct{}
	closeOnce   sync.Once
	settings    *TransportSettings
}

func NewWebsocket(id string, ws *websocket.Conn, settings *TransportSettings) *Websocket {
	return &Websocket{
		id:          id,
		ws:          ws,
		messageChan: make(chan []byte, settings.SendBufferSize),
		closed:      make(chan struct{}),
		settings:    settings,
	}
}

func (c *Websocket) Id() string {
	return c.id
}

func (c *Websocket) Send(message []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.messageChan <- message:
		return true
	default:
		return false
	}
}

func (c *Websocket) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

type WebsocketHandler struct {
	hub      *Hub
	tokens   *TokenManager
	settings *TransportSettings
}

func (h *WebsocketHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(rw, req, nil)
	if err != nil {
		// the upgrader has already replied
		glog.Infof("[ws]upgrade error = %s\n", err)
		return
	}

	c := NewWebsocket(ksuid.New().String(), ws, h.settings)
	glog.V(1).Infof("[ws]%s connected\n", c.id)

	token, err := h.tokens.Issue(c.id)
	if err != nil {
		glog.Infof("[ws]%s token error = %s\n", c.id, err)
		ws.Close()
		return
	}
	connected, err := scene.NewMessage(scene.TypeConnected, "", c.id, &scene.Connected{Token: token})
	if err == nil {
		err = ws.WriteJSON(connected)
	}
	if err != nil {
		glog.Infof("[ws]%s write error = %s\n", c.id, err)
		ws.Close()
		return
	}

	go c.MessageLoop()

	c.ReadLoop(h.hub)

	h.hub.Leave(c)
	c.Close()
	glog.V(1).Infof("[ws]%s closed\n", c.id)
}

// ReadLoop feeds frames to the hub until the connection fails or is closed.
func (c *Websocket) ReadLoop(hub *Hub) {
	c.ws.SetReadLimit(c.settings.ReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(c.settings.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.settings.PongTimeout))
	})

	go func() {
		<-c.closed
		// unblocks ReadMessage
		c.ws.SetReadDeadline(time.Now())
	}()

	for {
		messageType, p, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Infof("[ws]%s read error = %s\n", c.id, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		hub.HandleMessage(c, p)
	}
}

func (c *Websocket) MessageLoop() {
	pingTicker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		pingTicker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case m := <-c.messageChan:
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, m); err != nil {
				glog.Infof("[ws]%s write error = %s\n", c.id, err)
				c.Close()
				return
			}

		case <-pingTicker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.closed:
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
