// Package client joins a project room over a websocket and keeps a local
// mirror of its scene.
//
// Inbound messages, camera flushes and render ticks are handled by a single
// event loop goroutine. Outbound messages are written by a single writer in
// the order they were sent.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/james226/scene-api/scene"
)

var ErrClosed = errors.New("client closed")

// Renderer consumes the mirror on every tick.
type Renderer interface {
	Render(mirror Mirror)
}

type Settings struct {
	CameraWindow     time.Duration
	TickInterval     time.Duration
	SmoothingFactor  float64
	SendBufferSize   int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// display name attached to chat messages
	UserName string
	// called from the event loop for every inbound message
	OnMessage func(msg *scene.Message, applied bool)
}

func DefaultSettings() *Settings {
	return &Settings{
		CameraWindow:     100 * time.Millisecond,
		TickInterval:     16 * time.Millisecond,
		SmoothingFactor:  DefaultSmoothingFactor,
		SendBufferSize:   64,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		UserName:         "anonymous",
	}
}

type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	ws        *websocket.Conn
	projectId string
	selfId    string
	token     string
	settings  *Settings
	renderer  Renderer

	mutex      sync.Mutex
	reconciler *Reconciler
	loaded     chan struct{}
	loadOnce   sync.Once

	camera   *Throttle[scene.Camera]
	inbound  chan *scene.Message
	outbound chan *scene.Message

	wg   sync.WaitGroup
	done chan struct{}
}

// Dial connects to the server's websocket endpoint and joins the project.
// The renderer may be nil.
func Dial(ctx context.Context, url string, projectId string, settings *Settings, renderer Renderer) (*Client, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: settings.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	var connected scene.Message
	ws.SetReadDeadline(time.Now().Add(settings.HandshakeTimeout))
	if err := ws.ReadJSON(&connected); err != nil {
		ws.Close()
		return nil, fmt.Errorf("read connected: %w", err)
	}
	ws.SetReadDeadline(time.Time{})
	ev, err := scene.Decode(&connected)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("read connected: %w", err)
	}
	c, ok := ev.(*scene.Connected)
	if !ok {
		ws.Close()
		return nil, fmt.Errorf("expected %s, got %s", scene.TypeConnected, connected.Type)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ctx:        cancelCtx,
		cancel:     cancel,
		ws:         ws,
		projectId:  projectId,
		selfId:     connected.SenderId,
		token:      c.Token,
		settings:   settings,
		renderer:   renderer,
		reconciler: NewReconciler(projectId, settings.SmoothingFactor),
		loaded:     make(chan struct{}),
		inbound:    make(chan *scene.Message, settings.SendBufferSize),
		outbound:   make(chan *scene.Message, settings.SendBufferSize),
		done:       make(chan struct{}),
	}
	client.reconciler.SelfId = client.selfId
	client.camera = NewThrottle(client.emitCamera)

	client.wg.Add(3)
	go client.readLoop()
	go client.writeLoop()
	go client.run()
	go func() {
		client.wg.Wait()
		close(client.done)
	}()

	if err := client.send(scene.TypeJoinProject, nil); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Id is the connection id the server assigned. Camera broadcasts carrying it
// are this client's own echoes.
func (c *Client) Id() string {
	return c.selfId
}

// Token is the session token for HTTP side channels such as model upload.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) ProjectId() string {
	return c.projectId
}

// WaitLoaded blocks until the snapshot has been applied.
func (c *Client) WaitLoaded(ctx context.Context) error {
	select {
	case <-c.loaded:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Mirror() Mirror {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.reconciler.Mirror()
}

// UpdateCamera samples the local camera. At most one update per camera
// window goes out, carrying the latest sample.
func (c *Client) UpdateCamera(camera scene.Camera) {
	c.camera.Push(camera)
}

// UpdateObject sends a complete transform. The mirror changes when the
// server's rebroadcast arrives.
func (c *Client) UpdateObject(transform scene.Transform) error {
	return c.send(scene.TypeUpdateObject, &scene.ObjectUpdate{
		Position: &transform.Position,
		Rotation: &transform.Rotation,
		Scale:    &transform.Scale,
	})
}

func (c *Client) UpdateColor(color string) error {
	return c.send(scene.TypeUpdateCubeColor, &scene.ColorUpdate{Color: color})
}

func (c *Client) AddAnnotation(position scene.Vector3, text string) (scene.Annotation, error) {
	annotation := scene.Annotation{
		Id:       uuid.NewString(),
		Position: position,
		Text:     text,
	}
	err := c.send(scene.TypeAddAnnotation, &scene.AnnotationAdd{
		Annotation: &scene.AnnotationFields{
			Id:       annotation.Id,
			Position: &annotation.Position,
			Text:     annotation.Text,
		},
	})
	return annotation, err
}

// DeleteAnnotation removes the annotation the caller resolved by hit test.
func (c *Client) DeleteAnnotation(id string) error {
	return c.send(scene.TypeDeleteAnnotation, &scene.AnnotationDelete{AnnotationId: id})
}

func (c *Client) SendChat(text string) error {
	return c.send(scene.TypeSendMessage, &scene.ChatSend{
		Message: &scene.ChatMessage{
			User: c.settings.UserName,
			Text: text,
			Time: time.Now().Format("15:04"),
		},
	})
}

// Done is closed once every goroutine of the client has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends the pending camera sample, stops the loops and closes the
// connection. It waits for all goroutines to exit.
func (c *Client) Close() {
	c.camera.Flush()
	c.cancel()
	<-c.done
}

func (c *Client) emitCamera(camera scene.Camera) {
	err := c.send(scene.TypeUpdateCamera, &scene.CameraUpdate{
		Camera: &scene.CameraFields{
			Position: &camera.Position,
			Rotation: &camera.Rotation,
		},
	})
	if err != nil {
		glog.V(2).Infof("[c]%s drop camera = %s\n", c.selfId, err)
	}
}

func (c *Client) send(messageType string, data any) error {
	msg, err := scene.NewMessage(messageType, c.projectId, c.selfId, data)
	if err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case c.outbound <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.cancel()

	for {
		var msg scene.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			select {
			case <-c.ctx.Done():
			default:
				glog.Infof("[c]%s read error = %s\n", c.selfId, err)
			}
			return
		}
		select {
		case c.inbound <- &msg:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) writeLoop() {
	defer c.wg.Done()
	defer c.ws.Close()

	write := func(msg *scene.Message) bool {
		c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
		if err := c.ws.WriteJSON(msg); err != nil {
			glog.Infof("[c]%s write error = %s\n", c.selfId, err)
			c.cancel()
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-c.outbound:
			if !write(msg) {
				return
			}

		case <-c.ctx.Done():
			// drain what was sent before close
			for {
				select {
				case msg := <-c.outbound:
					if !write(msg) {
						return
					}
				default:
					c.ws.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(c.settings.WriteTimeout),
					)
					return
				}
			}
		}
	}
}

// run is the event loop. Its tickers are released when it returns.
func (c *Client) run() {
	defer c.wg.Done()

	cameraTicker := time.NewTicker(c.settings.CameraWindow)
	defer cameraTicker.Stop()
	renderTicker := time.NewTicker(c.settings.TickInterval)
	defer renderTicker.Stop()

	for {
		select {
		case msg := <-c.inbound:
			c.mutex.Lock()
			applied := c.reconciler.Apply(msg)
			loaded := c.reconciler.Loaded()
			c.mutex.Unlock()

			if loaded {
				c.loadOnce.Do(func() { close(c.loaded) })
			}
			if c.settings.OnMessage != nil {
				c.settings.OnMessage(msg, applied)
			}

		case <-cameraTicker.C:
			c.camera.Flush()

		case <-renderTicker.C:
			c.mutex.Lock()
			c.reconciler.Tick()
			var mirror Mirror
			if c.renderer != nil {
				mirror = c.reconciler.Mirror()
			}
			c.mutex.Unlock()

			if c.renderer != nil {
				c.renderer.Render(mirror)
			}

		case <-c.ctx.Done():
			return
		}
	}
}
