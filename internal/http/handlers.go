package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ridewatch/internal/backend"
	"github.com/example/ridewatch/internal/dispatch"
	"github.com/example/ridewatch/internal/driverdesk"
	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/prefs"
	"github.com/example/ridewatch/internal/reconciler"
	"github.com/example/ridewatch/internal/snapshot"
)

// Snapshots is the loader surface the view server needs.
type Snapshots interface {
	Refresh()
	RefreshWait(ctx context.Context) (int, error)
	Status() snapshot.Status
}

// Live reports whether the push subscription is up.
type Live interface {
	Connected() bool
}

type Deps struct {
	Rides     *reconciler.Reconciler
	Snapshots Snapshots
	Live      Live
	Desk      *driverdesk.Desk
	Prefs     prefs.Store
	Viewers   *dispatch.WSRegistry
	// OnTab, when set, is told about every tab stored through the API.
	OnTab  func(prefs.Tab)
	Logger *slog.Logger
}

// Server is the local view server: read-only views of the live collection,
// the driver desk actions, and a websocket stream of changes.
type Server struct {
	Deps
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{Deps: d, logger: d.Logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/rides", s.handleRides).Methods("GET")
	s.mux.HandleFunc("/api/rides/{id:[0-9]+}", s.handleRide).Methods("GET")
	s.mux.HandleFunc("/api/stats", s.handleStats).Methods("GET")
	s.mux.HandleFunc("/api/refresh", s.handleRefresh).Methods("POST")
	s.mux.HandleFunc("/api/tab", s.handleGetTab).Methods("GET")
	s.mux.HandleFunc("/api/tab", s.handlePutTab).Methods("PUT")

	s.mux.HandleFunc("/api/driver", s.handleDriver).Methods("GET")
	s.mux.HandleFunc("/api/driver", s.handleSetDriver).Methods("PUT")
	s.mux.HandleFunc("/api/driver/pending", s.handlePending).Methods("GET")
	s.mux.HandleFunc("/api/driver/accept/{ride_id:[0-9]+}", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/driver/trip/start", s.handleStartTrip).Methods("POST")
	s.mux.HandleFunc("/api/driver/trip/end", s.handleEndTrip).Methods("POST")
	s.mux.HandleFunc("/api/driver/location", s.handleLocation).Methods("POST")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.Viewers != nil {
		s.mux.Handle("/ws", s.Viewers)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// ViewStatus is what a viewer needs to render loading and staleness hints.
type ViewStatus struct {
	Loading     bool       `json:"loading"`
	Stale       bool       `json:"stale"`
	Live        bool       `json:"live"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

func (s *Server) viewStatus() ViewStatus {
	var v ViewStatus
	if s.Snapshots != nil {
		st := s.Snapshots.Status()
		v.Loading, v.Stale = st.Loading, st.Stale
		if !st.LastSuccess.IsZero() {
			t := st.LastSuccess
			v.LastSuccess = &t
		}
		v.LastError = st.LastError
	}
	if s.Live != nil {
		v.Live = s.Live.Connected()
	}
	return v
}

type ridesResponse struct {
	Rides  []models.RideRecord `json:"rides"`
	Total  int                 `json:"total"`
	Status ViewStatus          `json:"status"`
}

// GET /api/rides?status=ACTIVE|<RideStatus>
func (s *Server) handleRides(w http.ResponseWriter, r *http.Request) {
	rides := s.Rides.Rides()
	if f := r.URL.Query().Get("status"); f != "" {
		rides = filterRides(rides, f)
	}
	writeJSON(w, http.StatusOK, ridesResponse{Rides: rides, Total: len(rides), Status: s.viewStatus()})
}

func filterRides(in []models.RideRecord, filter string) []models.RideRecord {
	out := make([]models.RideRecord, 0, len(in))
	for _, rec := range in {
		switch {
		case filter == "ACTIVE" && rec.Status.Active():
		case filter == "TERMINAL" && rec.Status.Terminal():
		case models.RideStatus(filter) == rec.Status:
		default:
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Server) handleRide(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	rec, ok := s.Rides.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "ride not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Rides.Stats())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.Snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot loader not running")
		return
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		s.Snapshots.Refresh()
		w.WriteHeader(http.StatusAccepted)
		return
	}
	n, err := s.Snapshots.RefreshWait(r.Context())
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "refresh did not finish")
	case err != nil:
		writeJSON(w, http.StatusBadGateway, refreshResponse{Error: backend.UserMessage(err), Status: s.viewStatus()})
	default:
		writeJSON(w, http.StatusOK, refreshResponse{Count: n, Status: s.viewStatus()})
	}
}

type refreshResponse struct {
	Count  int        `json:"count"`
	Error  string     `json:"error,omitempty"`
	Status ViewStatus `json:"status"`
}

type tabBody struct {
	ActiveTab string `json:"activeTab"`
}

func (s *Server) handleGetTab(w http.ResponseWriter, r *http.Request) {
	tab, err := s.Prefs.ActiveTab(r.Context())
	if err != nil {
		s.logger.Warn("read tab preference", "error", err)
	}
	writeJSON(w, http.StatusOK, tabBody{ActiveTab: string(tab)})
}

func (s *Server) handlePutTab(w http.ResponseWriter, r *http.Request) {
	var body tabBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tab, err := prefs.ParseTab(body.ActiveTab)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Prefs.SetActiveTab(r.Context(), tab); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if s.OnTab != nil {
		s.OnTab(tab)
	}
	writeJSON(w, http.StatusOK, tabBody{ActiveTab: string(tab)})
}

func (s *Server) desk(w http.ResponseWriter) (*driverdesk.Desk, bool) {
	if s.Desk == nil {
		writeError(w, http.StatusServiceUnavailable, "driver desk disabled")
		return nil, false
	}
	return s.Desk, true
}

func (s *Server) handleDriver(w http.ResponseWriter, r *http.Request) {
	if d, ok := s.desk(w); ok {
		writeJSON(w, http.StatusOK, d.Snapshot())
	}
}

func (s *Server) handleSetDriver(w http.ResponseWriter, r *http.Request) {
	d, ok := s.desk(w)
	if !ok {
		return
	}
	var body struct {
		DriverID int64 `json:"driverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID <= 0 {
		writeError(w, http.StatusBadRequest, "driverId must be a positive integer")
		return
	}
	d.SetDriver(body.DriverID)
	writeJSON(w, http.StatusOK, d.Snapshot())
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if d, ok := s.desk(w); ok {
		writeJSON(w, http.StatusOK, d.Pending())
	}
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	d, ok := s.desk(w)
	if !ok {
		return
	}
	id, _ := strconv.ParseInt(mux.Vars(r)["ride_id"], 10, 64)
	ride, err := d.Accept(r.Context(), id)
	if err != nil {
		writeDeskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	d, ok := s.desk(w)
	if !ok {
		return
	}
	trip, err := d.StartTrip(r.Context())
	if err != nil {
		writeDeskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (s *Server) handleEndTrip(w http.ResponseWriter, r *http.Request) {
	d, ok := s.desk(w)
	if !ok {
		return
	}
	var body struct {
		DistanceKm float64 `json:"distanceKm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DistanceKm < 0 {
		writeError(w, http.StatusBadRequest, "distanceKm must be a non-negative number")
		return
	}
	trip, err := d.EndTrip(r.Context(), body.DistanceKm)
	if err != nil {
		writeDeskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	d, ok := s.desk(w)
	if !ok {
		return
	}
	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Latitude == nil || body.Longitude == nil {
		writeError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	if err := d.UpdateLocation(r.Context(), *body.Latitude, *body.Longitude); err != nil {
		writeDeskError(w, err)
		return
	}
	w.WriteHeader(204)
}

func writeDeskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, driverdesk.ErrBadCoordinate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, driverdesk.ErrNoDriver),
		errors.Is(err, driverdesk.ErrNoActiveRide),
		errors.Is(err, driverdesk.ErrNoActiveTrip),
		errors.Is(err, driverdesk.ErrTripStarted),
		errors.Is(err, driverdesk.ErrDriverChanged):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadGateway, backend.UserMessage(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
