package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ridewatch/internal/backend"
	"github.com/example/ridewatch/internal/dispatch"
	"github.com/example/ridewatch/internal/driverdesk"
	"github.com/example/ridewatch/internal/logging"
	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/prefs"
	"github.com/example/ridewatch/internal/push/pushtest"
	"github.com/example/ridewatch/internal/reconciler"
	"github.com/example/ridewatch/internal/snapshot"
)

type fakeSnapshots struct {
	refreshed int
	waited    int
	count     int
	err       error
	status    snapshot.Status
}

func (f *fakeSnapshots) Refresh()                { f.refreshed++ }
func (f *fakeSnapshots) Status() snapshot.Status { return f.status }

func (f *fakeSnapshots) RefreshWait(context.Context) (int, error) {
	f.waited++
	return f.count, f.err
}

type fakeLive bool

func (f fakeLive) Connected() bool { return bool(f) }

type deskCommands struct{ acceptErr error }

func (d *deskCommands) AcceptRide(_ context.Context, driverID int64, req models.AcceptRideRequest) (models.RideRecord, error) {
	if d.acceptErr != nil {
		return models.RideRecord{}, d.acceptErr
	}
	return models.RideRecord{ID: req.RideID, Status: models.StatusAccepted, DriverID: &driverID}, nil
}

func (d *deskCommands) StartTrip(_ context.Context, rideID int64) (models.Trip, error) {
	return models.Trip{ID: 77, RideID: rideID, Status: "IN_PROGRESS"}, nil
}

func (d *deskCommands) EndTrip(_ context.Context, tripID int64, req models.EndTripRequest) (models.Trip, error) {
	return models.Trip{ID: tripID, Status: "COMPLETED", DistanceKm: req.DistanceKm}, nil
}

func (d *deskCommands) UpdateLocation(context.Context, int64, models.LocationUpdate) error {
	return nil
}

type fixture struct {
	srv   *Server
	rec   *reconciler.Reconciler
	snaps *fakeSnapshots
	ch    *pushtest.Channel
	cmds  *deskCommands
	desk  *driverdesk.Desk
	tabs  []prefs.Tab
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Discard()
	rec := reconciler.New()
	require.NoError(t, rec.ReplaceAll([]models.RideRecord{
		{ID: 3, Status: models.StatusSearching},
		{ID: 2, Status: models.StatusCompleted},
		{ID: 1, Status: models.StatusInProgress},
	}))
	ch := pushtest.New()
	cmds := &deskCommands{}
	desk := driverdesk.New(ch, cmds, 5, log)
	desk.Activate(context.Background(), nil, nil)
	snaps := &fakeSnapshots{status: snapshot.Status{Stale: true, LastError: "network failure"}}
	f := &fixture{rec: rec, snaps: snaps, ch: ch, cmds: cmds, desk: desk}
	f.srv = NewServer(Deps{
		Rides:     rec,
		Snapshots: snaps,
		Live:      fakeLive(true),
		Desk:      desk,
		Prefs:     prefs.NewMemoryStore(),
		Viewers:   dispatch.NewWSRegistry(log),
		OnTab:     func(tab prefs.Tab) { f.tabs = append(f.tabs, tab) },
		Logger:    log,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	return rr
}

func TestRidesEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, "GET", "/api/rides", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var resp ridesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, int64(3), resp.Rides[0].ID, "server order is preserved")
	assert.True(t, resp.Status.Stale)
	assert.True(t, resp.Status.Live)
	assert.Equal(t, "network failure", resp.Status.LastError)

	rr = f.do(t, "GET", "/api/rides?status=ACTIVE", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)

	rr = f.do(t, "GET", "/api/rides?status=COMPLETED", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, int64(2), resp.Rides[0].ID)
}

func TestRideByID(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, "GET", "/api/rides/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"IN_PROGRESS"`)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/rides/99", "").Code)
}

func TestStatsAndRefresh(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, "GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total":3,"active":2,"completed":1}`, rr.Body.String())

	assert.Equal(t, http.StatusAccepted, f.do(t, "POST", "/api/refresh", "").Code)
	assert.Equal(t, 1, f.snaps.refreshed)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, "GET", "/api/refresh", "").Code)
}

func TestRefreshWaitReportsOutcome(t *testing.T) {
	f := newFixture(t)
	f.snaps.err = &backend.Error{Op: "GET /v1/rides", Status: 503, Message: "rides service unavailable"}
	rr := f.do(t, "POST", "/api/refresh?wait=true", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "rides service unavailable", resp.Error)
	assert.True(t, resp.Status.Stale)

	f.snaps.err, f.snaps.count = nil, 3
	rr = f.do(t, "POST", "/api/refresh?wait=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Empty(t, resp.Error)

	f.snaps.err = context.DeadlineExceeded
	assert.Equal(t, http.StatusGatewayTimeout, f.do(t, "POST", "/api/refresh?wait=true", "").Code)
	assert.Equal(t, 3, f.snaps.waited)
	assert.Zero(t, f.snaps.refreshed)
}

func TestTabPreference(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, "GET", "/api/tab", "")
	assert.JSONEq(t, `{"activeTab":"dashboard"}`, rr.Body.String())

	rr = f.do(t, "PUT", "/api/tab", `{"activeTab":"driver"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(t, "GET", "/api/tab", "")
	assert.JSONEq(t, `{"activeTab":"driver"}`, rr.Body.String())
	assert.Equal(t, []prefs.Tab{prefs.TabDriver}, f.tabs)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/tab", `{"activeTab":"settings"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/tab", `nope`).Code)
	assert.Len(t, f.tabs, 1, "rejected tabs are not announced")
}

func TestDriverDeskFlow(t *testing.T) {
	f := newFixture(t)
	f.ch.Establish()
	f.ch.Deliver(driverdesk.DriverTopic(5), []byte(`{"eventType":"NEW_RIDE_REQUEST","data":{"rideId":11,"pickupAddress":"A","pickupLatitude":1,"pickupLongitude":1}}`))

	rr := f.do(t, "GET", "/api/driver/pending", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var pending []driverdesk.Pending
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, int64(11), pending[0].RideID)

	assert.Equal(t, http.StatusConflict, f.do(t, "POST", "/api/driver/trip/start", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, "POST", "/api/driver/accept/11", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, "POST", "/api/driver/trip/start", "").Code)

	rr = f.do(t, "POST", "/api/driver/trip/end", `{"distanceKm":4.2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":77`)

	assert.Equal(t, http.StatusNoContent, f.do(t, "POST", "/api/driver/location", `{"latitude":1.5,"longitude":2}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/driver/location", `{"latitude":100,"longitude":2}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/driver/location", `{"latitude":1}`).Code)

	rr = f.do(t, "GET", "/api/driver", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap driverdesk.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, int64(5), snap.DriverID)
	require.NotNil(t, snap.Location)
	assert.Equal(t, 1.5, snap.Location.Lat)
}

func TestDriverBackendFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.cmds.acceptErr = &backend.Error{Op: "POST /v1/drivers/5/accept", Status: 409, Message: "Ride is no longer available"}
	rr := f.do(t, "POST", "/api/driver/accept/11", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.JSONEq(t, `{"error":"Ride is no longer available"}`, rr.Body.String())
}

func TestSetDriver(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/driver", `{"driverId":0}`).Code)
	require.Equal(t, http.StatusOK, f.do(t, "PUT", "/api/driver", `{"driverId":8}`).Code)
	assert.True(t, f.ch.Subscribed(driverdesk.DriverTopic(8)))
	assert.Equal(t, int64(8), f.desk.DriverID())
}

func TestDriverDeskDisabled(t *testing.T) {
	srv := NewServer(Deps{Rides: reconciler.New(), Prefs: prefs.NewMemoryStore(), Logger: logging.Discard()})
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest("GET", "/api/driver/pending", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthzAndRecover(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	f.srv.mux.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	rr = f.do(t, "GET", "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoedWhenPrintable(t *testing.T) {
	f := newFixture(t)
	var seen string
	f.srv.mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) { seen = RequestID(r.Context()) })

	req := httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	assert.Equal(t, "trace-42", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "trace-42", seen)

	req = httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set("X-Request-ID", "bad id\x01")
	rr = httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	assert.NotEqual(t, "bad id\x01", rr.Header().Get("X-Request-ID"))
	assert.Len(t, rr.Header().Get("X-Request-ID"), 36)
}

func TestViewerStreamThroughMiddleware(t *testing.T) {
	f := newFixture(t)
	f.srv.Viewers.Hello = func() dispatch.Frame { return dispatch.Frame{Type: "hello"} }
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame dispatch.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "hello", frame.Type)
}
