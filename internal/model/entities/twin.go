package entities

// JSON Patch vocabulary accepted by the twin store.
const (
	OpReplace = "replace"

	PathTemperature = "/Temperature"
	PathHumidity    = "/Humidity"
)

// PatchOperation is a single JSON Patch (RFC 6902) step.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// TwinUpdate is a partial update addressed to one digital twin.
type TwinUpdate struct {
	TwinID string           `json:"twin_id"`
	Patch  []PatchOperation `json:"patch"`
}

// Replace appends a replace operation and returns the update for chaining.
func (u TwinUpdate) Replace(path string, value any) TwinUpdate {
	u.Patch = append(u.Patch, PatchOperation{Op: OpReplace, Path: path, Value: value})
	return u
}
