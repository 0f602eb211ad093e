package proctable

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainerInfoMarshalJSON(t *testing.T) {
	ci := ContainerInfo{ID: []byte("47335b04ebb4aefdc353dda62ddd38e5e1e00fc1372f0c8d0138417f0ccb9e6c")}
	out, err := json.Marshal(ci)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"47335b04ebb4aefdc353dda62ddd38e5e1e00fc1372f0c8d0138417f0ccb9e6c"}`, string(out))
}
