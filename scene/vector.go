package scene

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector3) Scale(f float64) Vector3 {
	return Vector3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Lerp moves v towards target by factor.
func (v Vector3) Lerp(target Vector3, factor float64) Vector3 {
	return v.Add(target.Sub(v).Scale(factor))
}

// Transform is the shared object's placement. Rotation is in Euler angles.
type Transform struct {
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
	Scale    Vector3 `json:"scale"`
	Color    string  `json:"color,omitempty"`
}

func DefaultTransform() Transform {
	return Transform{
		Scale: Vector3{X: 1, Y: 1, Z: 1},
		Color: "#00ff00",
	}
}

type Camera struct {
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
}

func DefaultCamera() Camera {
	return Camera{Position: Vector3{Z: 3}}
}

type AssetRef struct {
	FileUrl string `json:"fileUrl"`
}

type Annotation struct {
	Id       string  `json:"id"`
	Position Vector3 `json:"position"`
	Text     string  `json:"text"`
}

type ChatMessage struct {
	User string `json:"user"`
	Text string `json:"text"`
	Time string `json:"time"`
}
