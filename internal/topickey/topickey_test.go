package topickey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/tickstream/internal/topickey"
)

func TestCanonicalJSON_FieldOrderIndependence(t *testing.T) {
	a, err := topickey.CanonicalJSON([]byte(`{"symbol":"AAPL","resolution":"1"}`))
	require.NoError(t, err)
	b, err := topickey.CanonicalJSON([]byte(`{"resolution":"1","symbol":"AAPL"}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, `{"resolution":"1","symbol":"AAPL"}`, a)
}

func TestCanonicalJSON_NestedStructures(t *testing.T) {
	a, err := topickey.CanonicalJSON([]byte(`{"filter":{"max":10,"min":1},"symbols":["AAPL","MSFT"]}`))
	require.NoError(t, err)
	b, err := topickey.CanonicalJSON([]byte(`{"symbols":["AAPL","MSFT"],"filter":{"min":1,"max":10}}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCanonicalJSON_ArrayOrderPreserved(t *testing.T) {
	a, err := topickey.CanonicalJSON([]byte(`["b","a"]`))
	require.NoError(t, err)
	b, err := topickey.CanonicalJSON([]byte(`["a","b"]`))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, `["b","a"]`, a)
}

func TestCanonicalJSON_NullBecomesEmptyString(t *testing.T) {
	got, err := topickey.CanonicalJSON([]byte(`{"depth":null,"symbol":"AAPL"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"depth":"","symbol":"AAPL"}`, got)
}

func TestCanonicalJSON_NumbersKeptVerbatim(t *testing.T) {
	asString, err := topickey.CanonicalJSON([]byte(`{"resolution":"1"}`))
	require.NoError(t, err)
	asNumber, err := topickey.CanonicalJSON([]byte(`{"resolution":1}`))
	require.NoError(t, err)

	assert.NotEqual(t, asString, asNumber)
	assert.Equal(t, `{"resolution":1}`, asNumber)
}

func TestCanonicalJSON_CompactOutput(t *testing.T) {
	got, err := topickey.CanonicalJSON([]byte("{\n  \"symbol\": \"AAPL\",\n  \"resolution\": \"D\"\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"resolution":"D","symbol":"AAPL"}`, got)
}

func TestCanonicalJSON_Invalid(t *testing.T) {
	_, err := topickey.CanonicalJSON([]byte(`{broken`))
	assert.Error(t, err)
}

func TestCanonical_StructsAndMapsAgree(t *testing.T) {
	type req struct {
		Symbol     string `json:"symbol"`
		Resolution string `json:"resolution"`
	}

	fromStruct, err := topickey.Canonical(req{Symbol: "AAPL", Resolution: "1"})
	require.NoError(t, err)
	fromMap, err := topickey.Canonical(map[string]any{"resolution": "1", "symbol": "AAPL"})
	require.NoError(t, err)

	assert.Equal(t, fromStruct, fromMap)
}
