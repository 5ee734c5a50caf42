package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/james226/scene-api/scene"
)

// Member is one transport connection joined to a room.
type Member interface {
	Id() string
	// Send queues a frame without blocking. It returns false when the
	// member cannot keep up.
	Send(message []byte) bool
	Close()
}

var ErrRoomClosed = errors.New("room closed")

type RoomEvent struct {
	SenderId string
	Event    scene.Event
}

type RoomSettings struct {
	ChatHistoryLimit int
	FlushInterval    time.Duration
	StoreTimeout     time.Duration
	NotifyBufferSize int
}

func DefaultRoomSettings() *RoomSettings {
	return &RoomSettings{
		ChatHistoryLimit: 500,
		FlushInterval:    1 * time.Second,
		StoreTimeout:     5 * time.Second,
		NotifyBufferSize: 32,
	}
}

// Room owns one project's scene. All joins, leaves and events go through
// the listen goroutine, which is the single writer of the editor. The state
// is loaded by listen itself, so opening a room never blocks the caller on
// the store.
type Room struct {
	Id string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	notifier       chan RoomEvent
	newMembers     chan Member
	closingMembers chan Member
	members        map[string]Member

	editor   *scene.Editor
	store    scene.Store
	settings *RoomSettings

	// set before done is closed
	err       error
	discard   atomic.Bool
	removed   bool
	removeErr error
}

// NewRoom starts the room. Loading waits for predecessor, the teardown of
// the project's previous room, so a reopened room sees its final flush.
// predecessor may be nil.
func NewRoom(ctx context.Context, id string, store scene.Store, settings *RoomSettings, predecessor <-chan struct{}) *Room {
	cancelCtx, cancel := context.WithCancel(ctx)
	room := &Room{
		Id:             id,
		ctx:            cancelCtx,
		cancel:         cancel,
		done:           make(chan struct{}),
		notifier:       make(chan RoomEvent, settings.NotifyBufferSize),
		newMembers:     make(chan Member),
		closingMembers: make(chan Member),
		members:        map[string]Member{},
		store:          store,
		settings:       settings,
	}

	go room.listen(predecessor)

	return room
}

// Join adds the member and sends it the snapshot before any later event.
// It blocks while the state is loading.
func (room *Room) Join(member Member) error {
	select {
	case room.newMembers <- member:
		return nil
	case <-room.done:
		if room.err != nil {
			return room.err
		}
		return ErrRoomClosed
	}
}

func (room *Room) Leave(member Member) {
	select {
	case room.closingMembers <- member:
	case <-room.done:
	}
}

func (room *Room) Notify(event RoomEvent) bool {
	select {
	case room.notifier <- event:
		return true
	case <-room.done:
		return false
	}
}

// Done is closed once the room has stopped and its state is stored.
func (room *Room) Done() <-chan struct{} {
	return room.done
}

// Close stops the room and waits for the final flush to the store.
func (room *Room) Close() {
	room.cancel()
	<-room.done
}

// Discard stops the room without flushing and deletes its stored state.
func (room *Room) Discard() error {
	room.discard.Store(true)
	room.cancel()
	<-room.done

	// stopped before seeing the flag
	if !room.removed {
		return room.remove()
	}
	return room.removeErr
}

func (room *Room) listen(predecessor <-chan struct{}) {
	defer func() {
		room.finish()
		close(room.done)
	}()

	if predecessor != nil {
		<-predecessor
	}
	state, err := room.load()
	if err != nil {
		room.err = fmt.Errorf("open room %s: %w", room.Id, err)
		glog.Infof("[room]%s load error = %s\n", room.Id, err)
		return
	}
	room.editor = scene.NewEditor(state, room.settings.ChatHistoryLimit)
	glog.Infof("[room]%s open\n", room.Id)

	flushTicker := time.NewTicker(room.settings.FlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case member := <-room.newMembers:
			room.members[member.Id()] = member
			snapshot, err := room.editor.Snapshot()
			if err != nil {
				glog.Infof("[room]%s snapshot error = %s\n", room.Id, err)
				continue
			}
			room.send(member, snapshot)
			glog.V(1).Infof("[room]%s joined %s. %d members\n", room.Id, member.Id(), len(room.members))

		case member := <-room.closingMembers:
			delete(room.members, member.Id())
			glog.V(1).Infof("[room]%s left %s. %d members\n", room.Id, member.Id(), len(room.members))

		case event := <-room.notifier:
			broadcasts, err := room.editor.Process(event.SenderId, event.Event)
			if err != nil {
				glog.V(2).Infof("[room]%s drop event from %s = %s\n", room.Id, event.SenderId, err)
				continue
			}
			for _, broadcast := range broadcasts {
				for id, member := range room.members {
					if !broadcast.IncludeSender && id == event.SenderId {
						continue
					}
					room.send(member, broadcast.Message)
				}
			}

		case <-flushTicker.C:
			room.flush()

		case <-room.ctx.Done():
			glog.Infof("[room]%s closed\n", room.Id)
			return
		}
	}
}

func (room *Room) send(member Member, message *scene.Message) {
	bytes, err := json.Marshal(message)
	if err != nil {
		glog.Infof("[room]%s encode %s error = %s\n", room.Id, message.Type, err)
		return
	}
	if !member.Send(bytes) {
		glog.Infof("[room]%s drop slow member %s\n", room.Id, member.Id())
		delete(room.members, member.Id())
		member.Close()
	}
}

func (room *Room) load() (*scene.State, error) {
	ctx, cancel := context.WithTimeout(room.ctx, room.settings.StoreTimeout)
	defer cancel()
	return room.store.Load(ctx, room.Id)
}

func (room *Room) finish() {
	if room.discard.Load() {
		room.removed = true
		room.removeErr = room.remove()
		return
	}
	if room.editor != nil {
		room.flush()
	}
}

func (room *Room) remove() error {
	ctx, cancel := context.WithTimeout(context.Background(), room.settings.StoreTimeout)
	defer cancel()
	if err := room.store.Delete(ctx, room.Id); err != nil {
		return fmt.Errorf("delete scene %s: %w", room.Id, err)
	}
	return nil
}

func (room *Room) flush() {
	if !room.editor.Dirty() {
		return
	}
	// the room context may already be done on the final flush
	ctx, cancel := context.WithTimeout(context.Background(), room.settings.StoreTimeout)
	defer cancel()
	if err := room.store.Save(ctx, room.editor.State()); err != nil {
		glog.Infof("[room]%s flush error = %s\n", room.Id, err)
		return
	}
	room.editor.MarkClean()
}
