package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	Name  string    `json:"name"`
	Flows []float64 `json:"flows"`
}

func TestJSON(t *testing.T) {
	var c JSON
	assert.Equal(t, "json", c.Name())

	data, err := c.Marshal(&message{Name: "a", Flows: []float64{8, 5, 3}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","flows":[8,5,3]}`, string(data))

	var got message
	require.NoError(t, c.Unmarshal(data, &got))
	assert.Equal(t, []float64{8, 5, 3}, got.Flows)
}

func TestJSON_EmptyBody(t *testing.T) {
	var got message
	require.NoError(t, JSON{}.Unmarshal(nil, &got))
	assert.Equal(t, message{}, got)
}

func TestJSON_Malformed(t *testing.T) {
	var got message
	assert.Error(t, JSON{}.Unmarshal([]byte(`{"name":`), &got))
}
