package scene

import (
	"encoding/json"
	"errors"
	"fmt"
)

// client -> server
const (
	TypeJoinProject      = "joinProject"
	TypeUpdateObject     = "updateObject"
	TypeUpdateCamera     = "updateCamera"
	TypeUpdateCubeColor  = "updateCubeColor"
	TypeAddAnnotation    = "addAnnotation"
	TypeDeleteAnnotation = "deleteAnnotation"
	TypeSendMessage      = "sendMessage"
	TypeModelUploaded    = "modelUploaded"
)

// server -> client
const (
	TypeConnected         = "connected"
	TypeLoadProject       = "loadProject"
	TypeObjectUpdated     = "objectUpdated"
	TypeCameraUpdated     = "cameraUpdated"
	TypeCubeColorUpdated  = "cubeColorUpdated"
	TypeAnnotationAdded   = "annotationAdded"
	TypeAnnotationDeleted = "annotationDeleted"
	TypeReceiveMessage    = "receiveMessage"
	TypeModelLoaded       = "modelLoaded"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Message is the envelope of every frame on the channel. Data holds the
// body of the event kind named by Type.
type Message struct {
	Type      string          `json:"type"`
	ProjectId string          `json:"projectId,omitempty"`
	SenderId  string          `json:"senderId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewMessage(messageType string, projectId string, senderId string, data any) (*Message, error) {
	msg := &Message{
		Type:      messageType,
		ProjectId: projectId,
		SenderId:  senderId,
	}
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", messageType, err)
		}
		msg.Data = bytes
	}
	return msg, nil
}

// Event is the decoded body of a Message. Each event kind has its own type.
type Event interface {
	Validate() error
}

type JoinProject struct{}

type ObjectUpdate struct {
	Position *Vector3 `json:"position"`
	Rotation *Vector3 `json:"rotation"`
	Scale    *Vector3 `json:"scale"`
}

type CameraFields struct {
	Position *Vector3 `json:"position"`
	Rotation *Vector3 `json:"rotation"`
}

type CameraUpdate struct {
	Camera *CameraFields `json:"camera"`
}

type ColorUpdate struct {
	Color string `json:"color"`
}

type AnnotationFields struct {
	Id       string   `json:"id"`
	Position *Vector3 `json:"position"`
	Text     string   `json:"text"`
}

type AnnotationAdd struct {
	Annotation *AnnotationFields `json:"annotation"`
}

type AnnotationDelete struct {
	AnnotationId string `json:"annotationId"`
}

type ChatSend struct {
	Message *ChatMessage `json:"message"`
}

type ModelUpload struct {
	FileUrl string `json:"fileUrl"`
}

type Snapshot struct {
	Camera      Camera        `json:"camera"`
	Object      Transform     `json:"object"`
	Annotations []Annotation  `json:"annotations"`
	Chat        []ChatMessage `json:"chat"`
	Model       *AssetRef     `json:"model,omitempty"`
}

type Connected struct {
	Token string `json:"token"`
}

func malformed(field string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformed, field)
}

func (e *JoinProject) Validate() error { return nil }

func (e *ObjectUpdate) Validate() error {
	switch {
	case e.Position == nil:
		return malformed("position")
	case e.Rotation == nil:
		return malformed("rotation")
	case e.Scale == nil:
		return malformed("scale")
	}
	return nil
}

func (e *ObjectUpdate) Transform() Transform {
	var t Transform
	if e.Position != nil {
		t.Position = *e.Position
	}
	if e.Rotation != nil {
		t.Rotation = *e.Rotation
	}
	if e.Scale != nil {
		t.Scale = *e.Scale
	}
	return t
}

func (e *CameraUpdate) Validate() error {
	switch {
	case e.Camera == nil:
		return malformed("camera")
	case e.Camera.Position == nil:
		return malformed("camera.position")
	case e.Camera.Rotation == nil:
		return malformed("camera.rotation")
	}
	return nil
}

func (e *CameraUpdate) Value() Camera {
	var c Camera
	if e.Camera == nil {
		return c
	}
	if e.Camera.Position != nil {
		c.Position = *e.Camera.Position
	}
	if e.Camera.Rotation != nil {
		c.Rotation = *e.Camera.Rotation
	}
	return c
}

func (e *ColorUpdate) Validate() error {
	if e.Color == "" {
		return malformed("color")
	}
	return nil
}

func (e *AnnotationAdd) Validate() error {
	switch {
	case e.Annotation == nil:
		return malformed("annotation")
	case e.Annotation.Id == "":
		return malformed("annotation.id")
	case e.Annotation.Position == nil:
		return malformed("annotation.position")
	}
	return nil
}

func (e *AnnotationAdd) Value() Annotation {
	a := Annotation{Id: e.Annotation.Id, Text: e.Annotation.Text}
	if e.Annotation.Position != nil {
		a.Position = *e.Annotation.Position
	}
	return a
}

func (e *AnnotationDelete) Validate() error {
	if e.AnnotationId == "" {
		return malformed("annotationId")
	}
	return nil
}

func (e *ChatSend) Validate() error {
	switch {
	case e.Message == nil:
		return malformed("message")
	case e.Message.Text == "":
		return malformed("message.text")
	}
	return nil
}

func (e *ModelUpload) Validate() error {
	if e.FileUrl == "" {
		return malformed("fileUrl")
	}
	return nil
}

func (e *Snapshot) Validate() error { return nil }

func (e *Connected) Validate() error { return nil }

// Decode maps the message type to its event kind and unmarshals the body.
// Request types and their broadcast counterparts share an event kind.
func Decode(msg *Message) (Event, error) {
	var ev Event
	switch msg.Type {
	case TypeJoinProject:
		ev = &JoinProject{}
	case TypeUpdateObject, TypeObjectUpdated:
		ev = &ObjectUpdate{}
	case TypeUpdateCamera, TypeCameraUpdated:
		ev = &CameraUpdate{}
	case TypeUpdateCubeColor, TypeCubeColorUpdated:
		ev = &ColorUpdate{}
	case TypeAddAnnotation, TypeAnnotationAdded:
		ev = &AnnotationAdd{}
	case TypeDeleteAnnotation, TypeAnnotationDeleted:
		ev = &AnnotationDelete{}
	case TypeSendMessage, TypeReceiveMessage:
		ev = &ChatSend{}
	case TypeModelUploaded, TypeModelLoaded:
		ev = &ModelUpload{}
	case TypeLoadProject:
		ev = &Snapshot{}
	case TypeConnected:
		ev = &Connected{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}

	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Type, err)
		}
	}
	return ev, nil
}

var clientTypes = map[string]bool{
	TypeJoinProject:      true,
	TypeUpdateObject:     true,
	TypeUpdateCamera:     true,
	TypeUpdateCubeColor:  true,
	TypeAddAnnotation:    true,
	TypeDeleteAnnotation: true,
	TypeSendMessage:      true,
	TypeModelUploaded:    true,
}

// Parse decodes and validates a message arriving from a client. Only client
// to server types are accepted. Every client event, joinProject included,
// must name a project.
func Parse(msg *Message) (Event, error) {
	if !clientTypes[msg.Type] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	if msg.ProjectId == "" {
		return nil, malformed("projectId")
	}
	ev, err := Decode(msg)
	if err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
