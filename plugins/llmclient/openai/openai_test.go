package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamtrans/pkg/contract"
)

func TestInvokeSendsSchemaAndReturnsContent(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"segments\":[]}"}}]}`))
	}))
	defer srv.Close()

	cli, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `/v1","api_key":"k","extra_headers":{"X-Extra":"yes"}}`))
	require.NoError(t, err)
	p := contract.ChatPrompt{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hola"},
		{Role: "json_schema", Content: `{"type":"object"}`},
	}
	raw, err := cli.Invoke(context.Background(), contract.Batch{Text: "hola"}, p)
	require.NoError(t, err)
	assert.Equal(t, `{"segments":[]}`, raw.Text)

	assert.Equal(t, "gpt-4.1-mini", got.Model)
	require.Len(t, got.Messages, 2)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_schema", got.ResponseFormat.Type)
	assert.Equal(t, "segments", got.ResponseFormat.JSONSchema.Name)
}

func TestInvokeMapsUpstreamErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	cli, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `","api_key":"k"}`))
	require.NoError(t, err)
	_, err = cli.Invoke(context.Background(), contract.Batch{}, contract.TextPrompt("x"))
	assert.ErrorIs(t, err, contract.ErrRateLimited)

	status = http.StatusOK
	_, err = cli.Invoke(context.Background(), contract.Batch{}, contract.TextPrompt("x"))
	assert.ErrorIs(t, err, contract.ErrResponseInvalid)

	_, err = cli.Invoke(context.Background(), contract.Batch{}, 42)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(nil)
	assert.ErrorIs(t, err, contract.ErrConfiguration)

	_, err = New(json.RawMessage(`{"disable_default_auth":true}`))
	assert.NoError(t, err)
}
