package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/james226/scene-api/scene"
)

type fakeMember struct {
	id        string
	messages  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeMember(id string, bufferSize int) *fakeMember {
	return &fakeMember{
		id:       id,
		messages: make(chan []byte, bufferSize),
		closed:   make(chan struct{}),
	}
}

func (m *fakeMember) Id() string {
	return m.id
}

func (m *fakeMember) Send(message []byte) bool {
	select {
	case m.messages <- message:
		return true
	default:
		return false
	}
}

func (m *fakeMember) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

func (m *fakeMember) expect(t *testing.T, messageType string) *scene.Message {
	t.Helper()
	select {
	case bytes := <-m.messages:
		var msg scene.Message
		require.NoError(t, json.Unmarshal(bytes, &msg))
		require.Equal(t, messageType, msg.Type)
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no %s", m.id, messageType)
		return nil
	}
}

func (m *fakeMember) expectNone(t *testing.T) {
	t.Helper()
	select {
	case bytes := <-m.messages:
		t.Fatalf("%s: unexpected %s", m.id, bytes)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestHub(t *testing.T, store scene.Store) *Hub {
	settings := DefaultRoomSettings()
	settings.FlushInterval = 10 * time.Millisecond
	hub := NewHub(context.Background(), store, settings)
	t.Cleanup(hub.Close)
	return hub
}

func frame(t *testing.T, messageType string, projectId string, data any) []byte {
	t.Helper()
	msg, err := scene.NewMessage(messageType, projectId, "", data)
	require.NoError(t, err)
	bytes, err := json.Marshal(msg)
	require.NoError(t, err)
	return bytes
}

func objectFrame(t *testing.T, projectId string, x float64) []byte {
	return frame(t, scene.TypeUpdateObject, projectId, &scene.ObjectUpdate{
		Position: &scene.Vector3{X: x},
		Rotation: &scene.Vector3{},
		Scale:    &scene.Vector3{X: 1, Y: 1, Z: 1},
	})
}

func snapshotOf(t *testing.T, msg *scene.Message) *scene.Snapshot {
	t.Helper()
	var snapshot scene.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snapshot))
	return &snapshot
}

func TestJoinSendsSnapshotOnlyToJoiner(t *testing.T) {
	hub := newTestHub(t, scene.NewMemoryStore())
	a := newFakeMember("a", 16)
	b := newFakeMember("b", 16)

	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	a.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "p", nil))
	b.expect(t, scene.TypeLoadProject)
	a.expectNone(t)
}

func TestPropagateEchoesObjectAndSkipsCameraSender(t *testing.T) {
	hub := newTestHub(t, scene.NewMemoryStore())
	a := newFakeMember("a", 16)
	b := newFakeMember("b", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "p", nil))
	a.expect(t, scene.TypeLoadProject)
	b.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(a, objectFrame(t, "p", 4))
	msg := a.expect(t, scene.TypeObjectUpdated)
	assert.Equal(t, "a", msg.SenderId)
	b.expect(t, scene.TypeObjectUpdated)

	hub.HandleMessage(a, frame(t, scene.TypeUpdateCamera, "p", &scene.CameraUpdate{
		Camera: &scene.CameraFields{Position: &scene.Vector3{X: 1}, Rotation: &scene.Vector3{}},
	}))
	msg = b.expect(t, scene.TypeCameraUpdated)
	assert.Equal(t, "a", msg.SenderId)
	a.expectNone(t)
}

func TestForeignProjectEventDropped(t *testing.T) {
	hub := newTestHub(t, scene.NewMemoryStore())
	a := newFakeMember("a", 16)
	b := newFakeMember("b", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "A", nil))
	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "B", nil))
	a.expect(t, scene.TypeLoadProject)
	b.expect(t, scene.TypeLoadProject)

	// a never joined B
	hub.HandleMessage(a, objectFrame(t, "B", 9))
	a.expectNone(t)
	b.expectNone(t)

	// an unjoined member cannot send at all
	stranger := newFakeMember("s", 16)
	assert.False(t, hub.Dispatch(stranger.Id(), "A", &scene.ColorUpdate{Color: "#fff"}))
}

func TestMalformedFramesDropped(t *testing.T) {
	hub := newTestHub(t, scene.NewMemoryStore())
	a := newFakeMember("a", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	a.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(a, []byte(`not json`))
	hub.HandleMessage(a, []byte(`{"type":"explode","projectId":"p"}`))
	hub.HandleMessage(a, frame(t, scene.TypeUpdateObject, "p", map[string]any{
		"position": scene.Vector3{X: 1},
	}))
	// broadcast names are not accepted from clients
	hub.HandleMessage(a, frame(t, scene.TypeObjectUpdated, "p", &scene.ObjectUpdate{
		Position: &scene.Vector3{X: 1},
		Rotation: &scene.Vector3{},
		Scale:    &scene.Vector3{X: 1, Y: 1, Z: 1},
	}))
	a.expectNone(t)
}

func TestSecondJoinMovesMember(t *testing.T) {
	hub := newTestHub(t, scene.NewMemoryStore())
	a := newFakeMember("a", 16)
	b := newFakeMember("b", 16)
	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "one", nil))
	b.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "one", nil))
	a.expect(t, scene.TypeLoadProject)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "two", nil))
	a.expect(t, scene.TypeLoadProject)

	projectId, ok := hub.ProjectOf("a")
	require.True(t, ok)
	assert.Equal(t, "two", projectId)
	assert.Equal(t, 2, hub.RoomCount())

	// b no longer shares a room with a
	hub.HandleMessage(b, frame(t, scene.TypeUpdateCubeColor, "one", &scene.ColorUpdate{Color: "#f00"}))
	b.expect(t, scene.TypeCubeColorUpdated)
	a.expectNone(t)
}

func TestRoomClosesAndStateSurvives(t *testing.T) {
	store := scene.NewMemoryStore()
	hub := newTestHub(t, store)
	a := newFakeMember("a", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	a.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(a, frame(t, scene.TypeAddAnnotation, "p", &scene.AnnotationAdd{
		Annotation: &scene.AnnotationFields{Id: "X", Position: &scene.Vector3{}, Text: "hi"},
	}))
	a.expect(t, scene.TypeAnnotationAdded)

	hub.Leave(a)
	assert.Equal(t, 0, hub.RoomCount())

	b := newFakeMember("b", 16)
	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "p", nil))
	snapshot := snapshotOf(t, b.expect(t, scene.TypeLoadProject))
	assert.Equal(t, []scene.Annotation{{Id: "X", Text: "hi"}}, snapshot.Annotations)
}

func TestPeriodicFlush(t *testing.T) {
	store := scene.NewMemoryStore()
	hub := newTestHub(t, store)
	a := newFakeMember("a", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	a.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(a, frame(t, scene.TypeUpdateCubeColor, "p", &scene.ColorUpdate{Color: "#abc"}))
	a.expect(t, scene.TypeCubeColorUpdated)

	assert.Eventually(t, func() bool {
		state, err := store.Load(context.Background(), "p")
		return err == nil && state.Object.Color == "#abc"
	}, time.Second, 10*time.Millisecond)
}

func TestSlowMemberDropped(t *testing.T) {
	hub := newTestHub(t, scene.NewMemoryStore())
	a := newFakeMember("a", 16)
	slow := newFakeMember("slow", 1)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	a.expect(t, scene.TypeLoadProject)
	// the snapshot fills the slow member's buffer
	hub.HandleMessage(slow, frame(t, scene.TypeJoinProject, "p", nil))

	hub.HandleMessage(a, objectFrame(t, "p", 1))
	a.expect(t, scene.TypeObjectUpdated)

	select {
	case <-slow.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("slow member was not closed")
	}
}

func TestSnapshotAfterUpdates(t *testing.T) {
	hub := newTestHub(t, scene.NewMemoryStore())
	a := newFakeMember("a", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	a.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(a, objectFrame(t, "p", 2))
	hub.HandleMessage(a, objectFrame(t, "p", 3))
	hub.HandleMessage(a, frame(t, scene.TypeSendMessage, "p", &scene.ChatSend{
		Message: &scene.ChatMessage{User: "u", Text: "hey", Time: "12:00"},
	}))
	a.expect(t, scene.TypeObjectUpdated)
	a.expect(t, scene.TypeObjectUpdated)
	a.expect(t, scene.TypeReceiveMessage)

	b := newFakeMember("b", 16)
	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "p", nil))
	snapshot := snapshotOf(t, b.expect(t, scene.TypeLoadProject))
	assert.Equal(t, 3.0, snapshot.Object.Position.X)
	assert.Equal(t, []scene.ChatMessage{{User: "u", Text: "hey", Time: "12:00"}}, snapshot.Chat)
}

// slowStore delays every store call for one project.
type slowStore struct {
	*scene.MemoryStore
	slow    string
	delay   time.Duration
	started chan string
}

func newSlowStore(slow string, delay time.Duration) *slowStore {
	return &slowStore{
		MemoryStore: scene.NewMemoryStore(),
		slow:        slow,
		delay:       delay,
		started:     make(chan string, 16),
	}
}

func (s *slowStore) wait(projectId string) {
	if projectId != s.slow {
		return
	}
	s.started <- projectId
	time.Sleep(s.delay)
}

func (s *slowStore) Load(ctx context.Context, projectId string) (*scene.State, error) {
	s.wait(projectId)
	return s.MemoryStore.Load(ctx, projectId)
}

func (s *slowStore) Save(ctx context.Context, state *scene.State) error {
	s.wait(state.ProjectId)
	return s.MemoryStore.Save(ctx, state)
}

func (s *slowStore) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		t.Fatal("store call did not start")
	}
}

func TestSlowFlushDoesNotStallOtherRooms(t *testing.T) {
	store := newSlowStore("A", 500*time.Millisecond)
	settings := DefaultRoomSettings()
	settings.FlushInterval = time.Hour
	hub := NewHub(context.Background(), store, settings)
	t.Cleanup(hub.Close)

	a := newFakeMember("a", 16)
	b := newFakeMember("b", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "A", nil))
	store.awaitStart(t)
	a.expect(t, scene.TypeLoadProject)
	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "B", nil))
	b.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(a, frame(t, scene.TypeUpdateCubeColor, "A", &scene.ColorUpdate{Color: "#abc"}))
	a.expect(t, scene.TypeCubeColorUpdated)

	// last member leaves, the final flush of A is slow
	go hub.Leave(a)
	store.awaitStart(t)

	start := time.Now()
	hub.HandleMessage(b, objectFrame(t, "B", 1))
	b.expect(t, scene.TypeObjectUpdated)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestSlowLoadDoesNotStallOtherRooms(t *testing.T) {
	store := newSlowStore("A", 500*time.Millisecond)
	hub := newTestHub(t, store)

	b := newFakeMember("b", 16)
	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "B", nil))
	b.expect(t, scene.TypeLoadProject)

	a := newFakeMember("a", 16)
	go hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "A", nil))
	store.awaitStart(t)

	start := time.Now()
	hub.HandleMessage(b, objectFrame(t, "B", 1))
	b.expect(t, scene.TypeObjectUpdated)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	a.expect(t, scene.TypeLoadProject)
}

func TestReopenedRoomSeesFinalFlush(t *testing.T) {
	store := newSlowStore("p", 200*time.Millisecond)
	settings := DefaultRoomSettings()
	settings.FlushInterval = time.Hour
	hub := NewHub(context.Background(), store, settings)
	t.Cleanup(hub.Close)

	a := newFakeMember("a", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	store.awaitStart(t)
	a.expect(t, scene.TypeLoadProject)
	hub.HandleMessage(a, frame(t, scene.TypeUpdateCubeColor, "p", &scene.ColorUpdate{Color: "#abc"}))
	a.expect(t, scene.TypeCubeColorUpdated)

	go hub.Leave(a)
	store.awaitStart(t)

	// joins while the old room is still flushing
	b := newFakeMember("b", 16)
	go hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "p", nil))
	store.awaitStart(t)
	snapshot := snapshotOf(t, b.expect(t, scene.TypeLoadProject))
	assert.Equal(t, "#abc", snapshot.Object.Color)
}

func TestDiscardDropsOpenRoom(t *testing.T) {
	store := scene.NewMemoryStore()
	hub := newTestHub(t, store)
	a := newFakeMember("a", 16)
	hub.HandleMessage(a, frame(t, scene.TypeJoinProject, "p", nil))
	a.expect(t, scene.TypeLoadProject)

	hub.HandleMessage(a, frame(t, scene.TypeAddAnnotation, "p", &scene.AnnotationAdd{
		Annotation: &scene.AnnotationFields{Id: "X", Position: &scene.Vector3{}, Text: "hi"},
	}))
	a.expect(t, scene.TypeAnnotationAdded)
	hub.HandleMessage(a, frame(t, scene.TypeUpdateCubeColor, "p", &scene.ColorUpdate{Color: "#abc"}))
	a.expect(t, scene.TypeCubeColorUpdated)
	assert.Eventually(t, func() bool {
		state, err := store.Load(context.Background(), "p")
		return err == nil && state.Annotations.Len() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Discard(context.Background(), "p"))

	select {
	case <-a.closed:
	default:
		t.Fatal("member of discarded room was not closed")
	}
	assert.Equal(t, 0, hub.RoomCount())
	_, ok := hub.ProjectOf("a")
	assert.False(t, ok)
	assert.False(t, hub.Dispatch("a", "p", &scene.ColorUpdate{Color: "#fff"}))

	// nothing is written back after the delete
	hub.Leave(a)
	time.Sleep(50 * time.Millisecond)
	state, err := store.Load(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Annotations.Len())
	assert.Equal(t, scene.DefaultTransform().Color, state.Object.Color)

	b := newFakeMember("b", 16)
	hub.HandleMessage(b, frame(t, scene.TypeJoinProject, "p", nil))
	snapshot := snapshotOf(t, b.expect(t, scene.TypeLoadProject))
	assert.Empty(t, snapshot.Annotations)
}

func TestDiscardWithoutRoomDeletesScene(t *testing.T) {
	store := scene.NewMemoryStore()
	hub := newTestHub(t, store)
	state := scene.NewState("p")
	state.ApplyColor("#abc")
	require.NoError(t, store.Save(context.Background(), state))

	require.NoError(t, hub.Discard(context.Background(), "p"))

	loaded, err := store.Load(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, scene.DefaultTransform().Color, loaded.Object.Color)
}
