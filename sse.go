package main

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/segmentio/ksuid"
)

// Observer is a read-only member streamed over Server-Sent Events. It gets
// the snapshot and every broadcast but cannot send events.
type Observer struct {
	id          string
	messageChan chan []byte
	closed      chan struct{}
	closeOnce   sync.Once
}

func NewObserver(id string, bufferSize int) *Observer {
	return &Observer{
		id:          id,
		messageChan: make(chan []byte, bufferSize),
		closed:      make(chan struct{}),
	}
}

func (c *Observer) Id() string {
	return c.id
}

func (c *Observer) Send(message []byte) bool {
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

func (c *Observer) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

type EventsHandler struct {
	hub      *Hub
	settings *TransportSettings
}

func (h *EventsHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		http.Error(rw, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	projectId := mux.Vars(req)["id"]

	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")

	c := NewObserver(ksuid.New().String(), h.settings.SendBufferSize)
	if err := h.hub.Join(c, projectId); err != nil {
		glog.Infof("[sse]%s join %s error = %s\n", c.id, projectId, err)
		http.Error(rw, "Failed to join project", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		h.hub.Leave(c)
		c.Close()
	}()

	c.MessageLoop(rw, flusher, req.Context().Done())

	glog.V(1).Infof("[sse]%s closed\n", c.id)
}

func (c *Observer) MessageLoop(rw http.ResponseWriter, flusher http.Flusher, notify <-chan struct{}) {
	for {
		select {
		case m := <-c.messageChan:
			if _, err := fmt.Fprintf(rw, "data: %s\n\n", m); err != nil {
				return
			}
			flusher.Flush()

		case <-c.closed:
			return

		case <-notify:
			return
		}
	}
}
