package proctable

import (
	"encoding/json"
	"strings"
)

// ContainerInfo identifies the container a Process belongs to, extracted
// from its cgroup path by the procfs package's container-id extractor
// (spec 4.3).
type ContainerInfo struct {
	// ID is the 64-character ASCII-hex SHA-256 fragment.
	ID []byte
}

// MarshalJSON implements spec 6: {"id": "<lowercase-hex-64>"}.
func (c ContainerInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID string `json:"id"`
	}{ID: strings.ToLower(string(c.ID))})
}
