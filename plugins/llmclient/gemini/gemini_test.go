package gemini

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

func TestInvokeBuildsRequest(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "1", r.URL.Query().Get("alt"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"seg"},{"text":"ments\":[]}"}]}}]}`))
	}))
	defer srv.Close()

	cli, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `","api_key":"k","extra_query":{"alt":"1"}}`))
	require.NoError(t, err)
	p := contract.ChatPrompt{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "u"},
		{Role: "assistant", Content: "a"},
		{Role: "json_schema", Content: `{"type":"object"}`},
	}
	raw, err := cli.Invoke(context.Background(), contract.Batch{}, p)
	require.NoError(t, err)
	assert.Equal(t, `{"segments":[]}`, raw.Text)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "sys", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 2)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	require.NotNil(t, got.GenerationConfig)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMIMEType)
}

func TestInvokeHeaderKeyAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("key"))
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cli, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `","api_key":"k","api_key_in_query":false}`))
	require.NoError(t, err)
	_, err = cli.Invoke(context.Background(), contract.Batch{}, contract.TextPrompt("x"))
	var ue contract.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadGateway, ue.UpstreamStatus())
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := New(nil)
	assert.ErrorIs(t, err, contract.ErrConfiguration)
}
