package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"erc20idx/pkg/controller"
	"erc20idx/pkg/metrics"
	"erc20idx/pkg/models"
	"erc20idx/pkg/state"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFetcher struct {
	err error
}

func (f fakeFetcher) Fetch(ctx context.Context, input string) (models.QueryResult, error) {
	if f.err != nil {
		return models.QueryResult{}, f.err
	}
	decimals := 18
	logo := "https://static.example/foo.png"
	return models.QueryResult{
		Address:  input,
		Balances: []models.TokenBalance{{ContractAddress: "0xa", TokenBalance: "1000000000000000000"}},
		Metadata: []models.TokenMetadata{{Name: "Foo", Symbol: "FOO", Decimals: &decimals, Logo: &logo}},
	}, nil
}

func newTestServer(t *testing.T, fetchErr error) (*Server, *controller.Controller) {
	t.Helper()
	m := metrics.New()
	ctrl := controller.New(fakeFetcher{err: fetchErr}, nil, controller.Options{TargetChainID: "0x1", Metrics: m})
	return NewServer(ctrl, Options{Metrics: m, Columns: 3}), ctrl
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandleState(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rr := doJSON(t, s.Handler(), "GET", "/api/state", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["hasQueried"])
	assert.Equal(t, false, resp["loading"])
}

func TestHandleIndex_Placeholder(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rr := doJSON(t, s.Handler(), "GET", "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), state.Placeholder)
	assert.Contains(t, rr.Body.String(), "repeat(3, 1fr)")
	assert.NotContains(t, rr.Body.String(), state.FilterNotice)
}

func TestHandleQuery(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rr := doJSON(t, s.Handler(), "POST", "/api/query", `{"address":"`+owner+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var st state.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	require.Len(t, st.Records, 1)
	assert.Equal(t, "FOO", st.Records[0].Symbol)
	assert.Equal(t, "1.0", st.Records[0].Balance)

	page := doJSON(t, s.Handler(), "GET", "/", "")
	assert.NotContains(t, page.Body.String(), state.Placeholder)
	assert.Contains(t, page.Body.String(), "$FOO")
	assert.Contains(t, page.Body.String(), state.FilterNotice)
	assert.Contains(t, page.Body.String(), "1.0")
	assert.Contains(t, page.Body.String(), `src="https://static.example/foo.png"`)
}

func TestHandleQuery_InvalidAddress(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rr := doJSON(t, s.Handler(), "POST", "/api/query", `{"address":"0x123"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid address")
}

func TestHandleQuery_BadBody(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rr := doJSON(t, s.Handler(), "POST", "/api/query", `{"address":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleQuery_UpstreamFailure(t *testing.T) {
	s, _ := newTestServer(t, errors.New("get token balances: 503 Service Unavailable"))

	rr := doJSON(t, s.Handler(), "POST", "/api/query", `{"address":"`+owner+`"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "503")
}

func TestHandleQueryForm(t *testing.T) {
	s, ctrl := newTestServer(t, nil)

	form := url.Values{"address": {owner}}
	req := httptest.NewRequest("POST", "/query", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Len(t, ctrl.State().Records, 1)
}

func TestHandleConnect_NoWallet(t *testing.T) {
	s, ctrl := newTestServer(t, nil)

	rr := doJSON(t, s.Handler(), "POST", "/connect", "")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "wallet not configured", ctrl.State().Err)

	page := doJSON(t, s.Handler(), "GET", "/", "")
	assert.Contains(t, page.Body.String(), "wallet not configured")
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)
	_ = doJSON(t, s.Handler(), "POST", "/api/query", `{"address":"`+owner+`"}`)

	rr := doJSON(t, s.Handler(), "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"UP"`)

	rr = doJSON(t, s.Handler(), "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `erc20idx_queries_total{outcome="success"} 1`)
}

func TestHandleWS(t *testing.T) {
	s, ctrl := newTestServer(t, nil)
	s.startBroadcasting()
	defer s.stopBroadcasting()

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	// Read initial state
	var msg map[string]interface{}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "initial", msg["type"])

	_, err = ctrl.Query(context.Background(), owner)
	require.NoError(t, err)

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var types []string
	for {
		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&frame))
		types = append(types, frame.Type)
		if frame.Type == string(controller.EventQueryFinished) {
			var qf queryFinished
			require.NoError(t, json.Unmarshal(frame.Data, &qf))
			assert.Equal(t, 1, qf.Tokens)
			assert.Empty(t, qf.Error)
			break
		}
	}
	assert.Contains(t, types, string(controller.EventStateChanged))
}

func TestShutdownWithoutStart(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.NoError(t, s.Shutdown(context.Background()))
}
