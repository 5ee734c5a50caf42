package client

import (
	"github.com/james226/scene-api/scene"
)

const DefaultSmoothingFactor = 0.1

// Mirror is a client's local copy of a project's scene.
type Mirror struct {
	Camera      scene.Camera
	Object      scene.Transform
	Annotations *scene.Registry
	Chat        []scene.ChatMessage
	Model       *scene.AssetRef
}

func (m Mirror) Clone() Mirror {
	clone := m
	clone.Annotations = m.Annotations.Clone()
	clone.Chat = make([]scene.ChatMessage, len(m.Chat))
	copy(clone.Chat, m.Chat)
	if m.Model != nil {
		model := *m.Model
		clone.Model = &model
	}
	return clone
}

// Reconciler applies inbound messages to the mirror of one project. Messages
// for other projects and camera echoes of this client are ignored. Not safe
// for concurrent use.
type Reconciler struct {
	ProjectId       string
	SelfId          string
	SmoothingFactor float64

	mirror       Mirror
	cameraTarget scene.Camera
	loaded       bool
}

func NewReconciler(projectId string, smoothingFactor float64) *Reconciler {
	return &Reconciler{
		ProjectId:       projectId,
		SmoothingFactor: smoothingFactor,
		mirror: Mirror{
			Camera:      scene.DefaultCamera(),
			Object:      scene.DefaultTransform(),
			Annotations: scene.NewRegistry(),
			Chat:        []scene.ChatMessage{},
		},
		cameraTarget: scene.DefaultCamera(),
	}
}

// Apply reports whether the message changed the mirror.
func (r *Reconciler) Apply(msg *scene.Message) bool {
	if msg.ProjectId != r.ProjectId {
		return false
	}
	ev, err := scene.Decode(msg)
	if err != nil {
		return false
	}

	switch e := ev.(type) {
	case *scene.Snapshot:
		r.mirror.Camera = e.Camera
		r.cameraTarget = e.Camera
		r.mirror.Object = e.Object
		r.mirror.Annotations.Reset(e.Annotations)
		r.mirror.Chat = append([]scene.ChatMessage{}, e.Chat...)
		r.mirror.Model = e.Model
		r.loaded = true
		return true

	case *scene.ObjectUpdate:
		applied := false
		if e.Position != nil {
			r.mirror.Object.Position = *e.Position
			applied = true
		}
		if e.Rotation != nil {
			r.mirror.Object.Rotation = *e.Rotation
			applied = true
		}
		if e.Scale != nil {
			r.mirror.Object.Scale = *e.Scale
			applied = true
		}
		return applied

	case *scene.CameraUpdate:
		if msg.SenderId == r.SelfId || e.Camera == nil {
			return false
		}
		if e.Camera.Position != nil {
			r.cameraTarget.Position = *e.Camera.Position
		}
		if e.Camera.Rotation != nil {
			r.cameraTarget.Rotation = *e.Camera.Rotation
		}
		return true

	case *scene.ColorUpdate:
		if e.Color == "" {
			return false
		}
		r.mirror.Object.Color = e.Color
		return true

	case *scene.AnnotationAdd:
		if e.Annotation == nil || e.Annotation.Id == "" {
			return false
		}
		return r.mirror.Annotations.Add(e.Value())

	case *scene.AnnotationDelete:
		return r.mirror.Annotations.Remove(e.AnnotationId)

	case *scene.ChatSend:
		if e.Message == nil {
			return false
		}
		r.mirror.Chat = append(r.mirror.Chat, *e.Message)
		return true

	case *scene.ModelUpload:
		if e.FileUrl == "" {
			return false
		}
		r.mirror.Model = &scene.AssetRef{FileUrl: e.FileUrl}
		return true
	}
	return false
}

// Tick moves the camera a step towards the latest received camera.
func (r *Reconciler) Tick() {
	r.mirror.Camera.Position = r.mirror.Camera.Position.Lerp(r.cameraTarget.Position, r.SmoothingFactor)
	r.mirror.Camera.Rotation = r.mirror.Camera.Rotation.Lerp(r.cameraTarget.Rotation, r.SmoothingFactor)
}

func (r *Reconciler) CameraTarget() scene.Camera {
	return r.cameraTarget
}

// Loaded reports whether the snapshot has arrived.
func (r *Reconciler) Loaded() bool {
	return r.loaded
}

// Mirror returns a copy of the local state.
func (r *Reconciler) Mirror() Mirror {
	return r.mirror.Clone()
}
