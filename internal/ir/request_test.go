package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestType(t *testing.T) {
	typ, err := ParseRequestType("UPDATE")
	require.NoError(t, err)
	assert.Equal(t, RequestUpdate, typ)

	typ, err = ParseRequestType(" delete ")
	require.NoError(t, err)
	assert.Equal(t, RequestDelete, typ)

	_, err = ParseRequestType("upsert")
	assert.Error(t, err)
}

func TestParseRequestScope(t *testing.T) {
	scope, err := ParseRequestScope("Document")
	require.NoError(t, err)
	assert.Equal(t, ScopeDocument, scope)

	scope, err = ParseRequestScope("index")
	require.NoError(t, err)
	assert.Equal(t, ScopeIndex, scope)

	_, err = ParseRequestScope("cluster")
	assert.Error(t, err)
}

func TestRequestType_JSON(t *testing.T) {
	type envelope struct {
		Type  RequestType  `json:"type"`
		Scope RequestScope `json:"scope"`
	}

	b, err := json.Marshal(envelope{Type: RequestDelete, Scope: ScopeIndex})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delete","scope":"index"}`, string(b))

	var got envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"update","scope":"document"}`), &got))
	assert.Equal(t, RequestUpdate, got.Type)
	assert.Equal(t, ScopeDocument, got.Scope)

	_, err = json.Marshal(envelope{})
	assert.Error(t, err, "zero values are not valid enum members")
}
