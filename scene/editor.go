package scene

import (
	"fmt"
)

// Broadcast is a message to fan out to a room. Camera updates skip their
// sender; every other kind is echoed back so the sender's view follows the
// room rather than its own optimistic copy.
type Broadcast struct {
	Message       *Message
	IncludeSender bool
}

// Editor applies validated events to one project's state and plans the
// resulting broadcasts. Callers serialize access; the editor has a single
// writer.
type Editor struct {
	Id        string
	ChatLimit int

	state *State
	dirty bool
}

func NewEditor(state *State, chatLimit int) *Editor {
	return &Editor{
		Id:        state.ProjectId,
		ChatLimit: chatLimit,
		state:     state,
	}
}

// Process mutates the state for ev and returns the messages to broadcast.
// Events that change nothing (duplicate annotation, delete of an absent
// annotation, join) produce no broadcast.
func (editor *Editor) Process(senderId string, ev Event) ([]*Broadcast, error) {
	var messageType string
	var data any
	includeSender := true

	switch e := ev.(type) {
	case *ObjectUpdate:
		editor.state.ApplyObject(e.Transform())
		messageType, data = TypeObjectUpdated, e

	case *CameraUpdate:
		editor.state.ApplyCamera(e.Value())
		messageType, data = TypeCameraUpdated, e
		includeSender = false

	case *ColorUpdate:
		editor.state.ApplyColor(e.Color)
		messageType, data = TypeCubeColorUpdated, e

	case *AnnotationAdd:
		if !editor.state.annotations().Add(e.Value()) {
			return nil, nil
		}
		messageType, data = TypeAnnotationAdded, e

	case *AnnotationDelete:
		if !editor.state.annotations().Remove(e.AnnotationId) {
			return nil, nil
		}
		messageType, data = TypeAnnotationDeleted, e

	case *ChatSend:
		editor.state.AppendChat(*e.Message, editor.ChatLimit)
		messageType, data = TypeReceiveMessage, e

	case *ModelUpload:
		editor.state.ApplyModel(AssetRef{FileUrl: e.FileUrl})
		messageType, data = TypeModelLoaded, e

	case *JoinProject:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}

	editor.dirty = true

	msg, err := NewMessage(messageType, editor.Id, senderId, data)
	if err != nil {
		return nil, err
	}
	return []*Broadcast{{Message: msg, IncludeSender: includeSender}}, nil
}

// Snapshot builds the loadProject message for a joining member.
func (editor *Editor) Snapshot() (*Message, error) {
	return NewMessage(TypeLoadProject, editor.Id, "", editor.state.Snapshot())
}

func (editor *Editor) State() *State {
	return editor.state
}

// Dirty reports whether the state changed since the last MarkClean.
func (editor *Editor) Dirty() bool {
	return editor.dirty
}

func (editor *Editor) MarkClean() {
	editor.dirty = false
}
