package statusz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamtrans/internal/diag"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// UT-STZ-01 healthz
func TestHealthz(t *testing.T) {
	rec := get(t, Router(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

// UT-STZ-02 metrics 返回排序后的计数器
func TestMetrics(t *testing.T) {
	diag.ResetMetrics()
	defer diag.ResetMetrics()
	rec := get(t, Router(), "/metrics")
	assert.JSONEq(t, `[]`, rec.Body.String())

	diag.IncOp("scheduler", "translate", "success")
	diag.IncOp("scheduler", "translate", "success")
	diag.IncError("translator", "rate_limited")
	rec = get(t, Router(), "/metrics")
	var got []diag.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "error_total{translator,rate_limited}", got[0].Name)
	assert.Equal(t, int64(2), got[1].Value)
}

// UT-STZ-03 progress 与未知路径
func TestProgress(t *testing.T) {
	diag.ResetMetrics()
	defer diag.ResetMetrics()
	diag.UpdateProgress(func(p *diag.Progress) {
		p.Running, p.Input, p.Submitted, p.Drained = true, "a.txt", 5, 3
	})
	var got diag.Progress
	require.NoError(t, json.Unmarshal(get(t, Router(), "/progress").Body.Bytes(), &got))
	assert.True(t, got.Running)
	assert.Equal(t, "a.txt", got.Input)
	assert.Equal(t, int64(5), got.Submitted)
	assert.Equal(t, int64(3), got.Drained)

	assert.Equal(t, http.StatusNotFound, get(t, Router(), "/nope").Code)
	rec := httptest.NewRecorder()
	Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// UT-STZ-04 Start/Shutdown
func TestStartShutdown(t *testing.T) {
	s, err := Start("127.0.0.1:0", nil)
	require.NoError(t, err)
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, s.Shutdown(context.Background()))

	_, err = Start("256.0.0.1:bad", nil)
	assert.Error(t, err)
}
