package scene

// State is the authoritative scene of one project. Each field group holds
// only its latest value.
type State struct {
	ProjectId   string        `json:"projectId"`
	Camera      Camera        `json:"camera"`
	Object      Transform     `json:"object"`
	Annotations *Registry     `json:"annotations"`
	Chat        []ChatMessage `json:"chat"`
	Model       *AssetRef     `json:"model,omitempty"`
}

func NewState(projectId string) *State {
	return &State{
		ProjectId:   projectId,
		Camera:      DefaultCamera(),
		Object:      DefaultTransform(),
		Annotations: NewRegistry(),
		Chat:        []ChatMessage{},
	}
}

// ApplyObject replaces position, rotation and scale wholesale. Color is a
// separate field group and is kept.
func (s *State) ApplyObject(transform Transform) {
	color := s.Object.Color
	s.Object = transform
	s.Object.Color = color
}

func (s *State) ApplyColor(color string) {
	s.Object.Color = color
}

func (s *State) ApplyCamera(camera Camera) {
	s.Camera = camera
}

func (s *State) ApplyModel(model AssetRef) {
	s.Model = &model
}

// AppendChat appends and trims the oldest messages beyond limit. A limit of
// zero keeps everything.
func (s *State) AppendChat(message ChatMessage, limit int) {
	s.Chat = append(s.Chat, message)
	if 0 < limit && limit < len(s.Chat) {
		trimmed := make([]ChatMessage, limit)
		copy(trimmed, s.Chat[len(s.Chat)-limit:])
		s.Chat = trimmed
	}
}

func (s *State) Snapshot() *Snapshot {
	snapshot := &Snapshot{
		Camera:      s.Camera,
		Object:      s.Object,
		Annotations: s.annotations().List(),
		Chat:        make([]ChatMessage, len(s.Chat)),
	}
	copy(snapshot.Chat, s.Chat)
	if s.Model != nil {
		model := *s.Model
		snapshot.Model = &model
	}
	return snapshot
}

func (s *State) Clone() *State {
	clone := &State{
		ProjectId:   s.ProjectId,
		Camera:      s.Camera,
		Object:      s.Object,
		Annotations: s.annotations().Clone(),
		Chat:        make([]ChatMessage, len(s.Chat)),
	}
	copy(clone.Chat, s.Chat)
	if s.Model != nil {
		model := *s.Model
		clone.Model = &model
	}
	return clone
}

func (s *State) annotations() *Registry {
	if s.Annotations == nil {
		s.Annotations = NewRegistry()
	}
	return s.Annotations
}
