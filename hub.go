package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/james226/scene-api/scene"
)

type session struct {
	projectId string
	member    Member
	room      *Room
}

// departure is a member detached from the hub's maps whose room still has to
// be told, outside the hub lock.
type departure struct {
	member Member
	room   *Room
	last   bool
}

// Hub maps connections to rooms. A room exists while it has members; its
// state outlives it in the store. The hub lock is never held across a store
// call or a room handoff.
type Hub struct {
	ctx      context.Context
	store    scene.Store
	settings *RoomSettings

	mutex    sync.Mutex
	rooms    map[string]*Room
	counts   map[string]int
	sessions map[string]*session
	// teardowns in flight; the next room of the project loads after them
	closing map[string]<-chan struct{}
}

func NewHub(ctx context.Context, store scene.Store, settings *RoomSettings) *Hub {
	return &Hub{
		ctx:      ctx,
		store:    store,
		settings: settings,
		rooms:    map[string]*Room{},
		counts:   map[string]int{},
		sessions: map[string]*session{},
		closing:  map[string]<-chan struct{}{},
	}
}

// Join puts the member in the project's room. A member already in a room is
// moved, never duplicated. Join returns once the member has its snapshot
// queued.
func (hub *Hub) Join(member Member, projectId string) error {
	hub.mutex.Lock()
	previous := hub.detachLocked(member.Id())
	room, ok := hub.rooms[projectId]
	if !ok {
		room = NewRoom(hub.ctx, projectId, hub.store, hub.settings, hub.closing[projectId])
		hub.rooms[projectId] = room
	}
	s := &session{
		projectId: projectId,
		member:    member,
		room:      room,
	}
	hub.sessions[member.Id()] = s
	hub.counts[projectId] += 1
	hub.mutex.Unlock()

	hub.release(previous)

	if err := room.Join(member); err != nil {
		hub.mutex.Lock()
		var d *departure
		if hub.sessions[member.Id()] == s {
			d = hub.detachLocked(member.Id())
		}
		hub.mutex.Unlock()
		hub.release(d)
		return fmt.Errorf("join %s: %w", projectId, err)
	}
	return nil
}

// Leave removes the member from its room, if any.
func (hub *Hub) Leave(member Member) {
	hub.mutex.Lock()
	d := hub.detachLocked(member.Id())
	hub.mutex.Unlock()

	hub.release(d)
}

func (hub *Hub) detachLocked(memberId string) *departure {
	s, ok := hub.sessions[memberId]
	if !ok {
		return nil
	}
	delete(hub.sessions, memberId)

	hub.counts[s.projectId] -= 1
	if hub.counts[s.projectId] > 0 {
		return &departure{member: s.member, room: s.room}
	}
	delete(hub.counts, s.projectId)
	if hub.rooms[s.projectId] == s.room {
		delete(hub.rooms, s.projectId)
	}
	hub.closing[s.projectId] = s.room.Done()
	return &departure{member: s.member, room: s.room, last: true}
}

func (hub *Hub) release(d *departure) {
	if d == nil {
		return
	}
	if !d.last {
		d.room.Leave(d.member)
		return
	}
	d.room.Close()
	hub.forget(d.room.Id, d.room.Done())
}

func (hub *Hub) forget(projectId string, done <-chan struct{}) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if hub.closing[projectId] == done {
		delete(hub.closing, projectId)
	}
}

// Discard closes the project's room without saving, disconnects its members
// and deletes the stored scene. A later join starts from a fresh scene.
func (hub *Hub) Discard(ctx context.Context, projectId string) error {
	hub.mutex.Lock()
	room := hub.rooms[projectId]
	evicted := []Member{}
	for id, s := range hub.sessions {
		if s.projectId == projectId {
			evicted = append(evicted, s.member)
			delete(hub.sessions, id)
		}
	}
	delete(hub.counts, projectId)
	delete(hub.rooms, projectId)

	predecessor := hub.closing[projectId]
	var done <-chan struct{}
	var tombstone chan struct{}
	if room != nil {
		done = room.Done()
	} else {
		tombstone = make(chan struct{})
		done = tombstone
	}
	hub.closing[projectId] = done
	hub.mutex.Unlock()

	for _, member := range evicted {
		member.Close()
	}
	glog.Infof("[hub]discard %s. %d members evicted\n", projectId, len(evicted))

	var err error
	if room != nil {
		err = room.Discard()
	} else {
		if predecessor != nil {
			<-predecessor
		}
		err = hub.store.Delete(ctx, projectId)
		close(tombstone)
	}
	hub.forget(projectId, done)
	return err
}

// Dispatch hands an event to the sender's room. Events naming a project the
// sender has not joined are dropped.
func (hub *Hub) Dispatch(senderId string, projectId string, event scene.Event) bool {
	hub.mutex.Lock()
	s, ok := hub.sessions[senderId]
	var room *Room
	if ok && s.projectId == projectId {
		room = s.room
	}
	hub.mutex.Unlock()

	if room == nil {
		glog.V(2).Infof("[hub]drop foreign event %T from %s for %s\n", event, senderId, projectId)
		return false
	}
	return room.Notify(RoomEvent{SenderId: senderId, Event: event})
}

// HandleMessage is the channel boundary for frames read from a member.
// Malformed or foreign frames are dropped without a reply.
func (hub *Hub) HandleMessage(member Member, frame []byte) {
	var msg scene.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		glog.V(2).Infof("[hub]drop frame from %s = %s\n", member.Id(), err)
		return
	}

	event, err := scene.Parse(&msg)
	if err != nil {
		glog.V(2).Infof("[hub]drop %s from %s = %s\n", msg.Type, member.Id(), err)
		return
	}

	if _, ok := event.(*scene.JoinProject); ok {
		if err := hub.Join(member, msg.ProjectId); err != nil {
			glog.Infof("[hub]join %s to %s error = %s\n", member.Id(), msg.ProjectId, err)
		}
		return
	}
	hub.Dispatch(member.Id(), msg.ProjectId, event)
}

// ProjectOf returns the project the member has joined.
func (hub *Hub) ProjectOf(memberId string) (string, bool) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	s, ok := hub.sessions[memberId]
	if !ok {
		return "", false
	}
	return s.projectId, true
}

func (hub *Hub) RoomCount() int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	return len(hub.rooms)
}

// Close shuts every room, flushing state to the store.
func (hub *Hub) Close() {
	hub.mutex.Lock()
	rooms := make([]*Room, 0, len(hub.rooms))
	for id, room := range hub.rooms {
		rooms = append(rooms, room)
		hub.closing[id] = room.Done()
		delete(hub.rooms, id)
	}
	hub.counts = map[string]int{}
	hub.sessions = map[string]*session{}
	hub.mutex.Unlock()

	for _, room := range rooms {
		room.Close()
		hub.forget(room.Id, room.Done())
	}
}
