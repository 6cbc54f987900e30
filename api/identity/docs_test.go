package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestDocRendersValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var parsed struct {
		Swagger string                     `json:"swagger"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	require.Equal(t, "2.0", parsed.Swagger)
	require.Contains(t, parsed.Paths, "/v1/login")
	require.Contains(t, parsed.Paths, "/.well-known/jwks.json")
}
