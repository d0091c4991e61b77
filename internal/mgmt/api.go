// Package mgmt is the narrow surface the external dashboard consumes:
// list leases, administratively release one, and check whether the
// protocol listener is up.
package mgmt

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"leased/internal/metrics"
	"leased/internal/storage"
	"leased/pkg/dhcp"
)

// LeaseService is what the API needs from the lease manager.
// Administrative releases go through the same path as protocol
// releases, so the two can never disagree about pool state.
type LeaseService interface {
	Snapshot() []*storage.Lease
	Release(clientID net.HardwareAddr) error
}

type API struct {
	leases LeaseService
	status func() bool
}

func NewAPI(leases LeaseService, status func() bool) *API {
	return &API{leases: leases, status: status}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/leases", a.handleLeases)
	r.Post("/api/release", a.handleRelease)
	r.Get("/api/status", a.handleStatus)
	return r
}

type leaseEntry struct {
	ClientID   string    `json:"client_id"`
	IP         string    `json:"ip"`
	Hostname   string    `json:"hostname,omitempty"`
	State      string    `json:"state"`
	LeaseStart time.Time `json:"lease_start"`
	LeaseEnd   time.Time `json:"lease_end"`
}

func (a *API) handleLeases(w http.ResponseWriter, r *http.Request) {
	leases := a.leases.Snapshot()

	entries := make([]leaseEntry, 0, len(leases))
	for _, l := range leases {
		entries = append(entries, leaseEntry{
			ClientID:   l.ClientID.String(),
			IP:         l.IP.String(),
			Hostname:   l.Hostname,
			State:      l.State.String(),
			LeaseStart: l.LeaseStart,
			LeaseEnd:   l.LeaseEnd,
		})
	}

	writeJSON(w, http.StatusOK, entries)
}

type releaseRequest struct {
	ClientID string `json:"client_id"`
}

type releaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func (a *API) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, releaseResponse{Message: "invalid request body"})
		return
	}

	mac, err := net.ParseMAC(req.ClientID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, releaseResponse{Message: "client_id must be a MAC address"})
		return
	}

	err = a.leases.Release(mac)
	if errors.Is(err, dhcp.ErrUnknownClient) {
		// not a failure: the lease may have expired on its own
		writeJSON(w, http.StatusOK, releaseResponse{
			Success: false,
			Warning: "no lease found for " + mac.String(),
		})
		return
	}
	if err != nil {
		log.Errorf("Admin release of %s failed: %v", mac, err)
		writeJSON(w, http.StatusInternalServerError, releaseResponse{Message: err.Error()})
		return
	}

	metrics.AdminReleases.Inc()
	log.Infof("[ADMIN] Released lease for MAC=%s", mac)
	writeJSON(w, http.StatusOK, releaseResponse{
		Success: true,
		Message: "released lease for " + mac.String(),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"online": a.status()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Encoding management response failed: %v", err)
	}
}

func StartServer(listenAddr string, api *API) error {
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Management API server error: %v", err)
		}
	}()
	return nil
}
