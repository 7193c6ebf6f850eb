// internal/matchmaking/handlers_test.go

package matchmaking

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/gorilla/mux"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// fakeAuth injects a fixed user id the way the JWT middleware would.
func fakeAuth(userID int64) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            ctx := context.WithValue(r.Context(), "userID", userID)
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

func newTestRouter(t *testing.T, userID int64) (*mux.Router, *serviceHarness) {
    t.Helper()
    h := newServiceHarness(t, MatcherConfig{MinScoreThreshold: 0.3})
    router := mux.NewRouter()
    RegisterRoutes(router, NewHandler(h.service), fakeAuth(userID), "admin-secret")
    return router, h
}

func doRequest(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
    var buf bytes.Buffer
    if body != nil {
        _ = json.NewEncoder(&buf).Encode(body)
    }
    req := httptest.NewRequest(method, path, &buf)
    if body != nil {
        req.Header.Set("Content-Type", "application/json")
    }
    rec := httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    return rec
}

func TestJoinQueueEndpoint(t *testing.T) {
    router, h := newTestRouter(t, 1)
    h.addProfile(profileFixture(1, 30, "male"))

    rec := doRequest(router, "POST", "/api/v1/match/queue", nil)

    require.Equal(t, http.StatusOK, rec.Code)
    var resp struct {
        Success bool        `json:"success"`
        Data    QueueStatus `json:"data"`
    }
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
    assert.True(t, resp.Success)
    assert.Equal(t, QueueWaiting, resp.Data.Status)
}

func TestJoinQueueEndpointErrorMapping(t *testing.T) {
    router, h := newTestRouter(t, 1)
    h.addProfile(profileFixture(1, 30, "male"))

    // Unknown users map to 404.
    missing, _ := newTestRouter(t, 99)
    rec := doRequest(missing, "POST", "/api/v1/match/queue", nil)
    assert.Equal(t, http.StatusNotFound, rec.Code)

    // Bad filters map to 400.
    body := map[string]interface{}{"filters": map[string]interface{}{"preferred_min_age": 12}}
    rec = doRequest(router, "POST", "/api/v1/match/queue", body)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    // Restricted accounts map to 403.
    h.safety.restricted[1] = true
    rec = doRequest(router, "POST", "/api/v1/match/queue", nil)
    assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQueueStatusAndLeaveEndpoints(t *testing.T) {
    router, h := newTestRouter(t, 1)
    h.addProfile(profileFixture(1, 30, "male"))

    rec := doRequest(router, "GET", "/api/v1/match/queue", nil)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), string(QueueNotInQueue))

    doRequest(router, "POST", "/api/v1/match/queue", nil)
    rec = doRequest(router, "DELETE", "/api/v1/match/queue", nil)
    assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAcceptDeclineEndpoints(t *testing.T) {
    router1, h := newTestRouter(t, 1)
    h.addProfile(profileFixture(1, 30, "male"))
    h.addProfile(profileFixture(2, 28, "female"))
    ctx := context.Background()
    _, err := h.service.JoinQueue(ctx, 1, nil)
    require.NoError(t, err)
    _, err = h.service.JoinQueue(ctx, 2, nil)
    require.NoError(t, err)
    require.Equal(t, 1, h.matcher.Tick(ctx, 0))
    views, err := h.service.GetPendingMatches(ctx, 1)
    require.NoError(t, err)
    matchID := views[0].ID

    rec := doRequest(router1, "POST", "/api/v1/match/attempts/"+matchID+"/accept", nil)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), string(StatePartiallyAccepted))

    // A stranger touching the attempt gets a validation error.
    stranger := mux.NewRouter()
    RegisterRoutes(stranger, NewHandler(h.service), fakeAuth(99), "")
    rec = doRequest(stranger, "POST", "/api/v1/match/attempts/"+matchID+"/decline", nil)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = doRequest(router1, "POST", "/api/v1/match/attempts/no-such-id/accept", nil)
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelEndpointRequiresAdminToken(t *testing.T) {
    router, h := newTestRouter(t, 1)
    h.addProfile(profileFixture(1, 30, "male"))
    h.addProfile(profileFixture(2, 28, "female"))
    ctx := context.Background()
    _, err := h.service.JoinQueue(ctx, 1, nil)
    require.NoError(t, err)
    _, err = h.service.JoinQueue(ctx, 2, nil)
    require.NoError(t, err)
    require.Equal(t, 1, h.matcher.Tick(ctx, 0))
    views, err := h.service.GetPendingMatches(ctx, 1)
    require.NoError(t, err)
    path := "/api/v1/match/attempts/" + views[0].ID + "/cancel"

    rec := doRequest(router, "POST", path, CancelMatchRequest{Reason: "abuse report"})
    assert.Equal(t, http.StatusForbidden, rec.Code)

    var buf bytes.Buffer
    require.NoError(t, json.NewEncoder(&buf).Encode(CancelMatchRequest{Reason: "abuse report"}))
    req := httptest.NewRequest("POST", path, &buf)
    req.Header.Set("X-Admin-Token", "admin-secret")
    rec = httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), string(StateCancelled))

    // Reason is mandatory.
    buf.Reset()
    require.NoError(t, json.NewEncoder(&buf).Encode(CancelMatchRequest{}))
    req = httptest.NewRequest("POST", path, &buf)
    req.Header.Set("X-Admin-Token", "admin-secret")
    rec = httptest.NewRecorder()
    router.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}
