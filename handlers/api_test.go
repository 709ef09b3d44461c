package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secretsResponse struct {
	Status string `json:"status"`
	Data   []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func TestAPIListSecrets(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.newBrowser(t)

	resp, body := b.get("/api/v1/secrets")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"success","data":[]}`, body)

	b.register("api_user", testPassword)
	b.submit("first")
	b.submit("second")

	_, body = b.get("/api/v1/secrets")
	var parsed secretsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	assert.Equal(t, "success", parsed.Status)
	require.Len(t, parsed.Data, 2)
	assert.Equal(t, "first", parsed.Data[0].Text)
	assert.Equal(t, "second", parsed.Data[1].Text)
	assert.NotEmpty(t, parsed.Data[0].ID)
}

func TestAPICORS(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.newBrowser(t)

	req, err := http.NewRequest(http.MethodOptions, b.base.String()+"/api/v1/secrets", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := b.client.Do(req)
	require.NoError(t, err)
	readBody(t, resp)

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "GET")
}

func TestAPIStoreUnavailable(t *testing.T) {
	app := newTestApp(t, nil)
	b := app.newBrowser(t)
	require.NoError(t, app.conn.Close())

	resp, body := b.get("/api/v1/secrets")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var parsed APIResponse
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	assert.Equal(t, "error", parsed.Status)
	assert.NotEmpty(t, parsed.Message)
}
