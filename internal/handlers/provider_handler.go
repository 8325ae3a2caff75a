package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lanepos/backend/internal/providers"
	"github.com/lanepos/backend/internal/services"
)

type ProviderHandler struct {
	registry *providers.Registry
	cloud    *providers.CloudTerminalAdapter
}

func NewProviderHandler(registry *providers.Registry, cloud *providers.CloudTerminalAdapter) *ProviderHandler {
	return &ProviderHandler{
		registry: registry,
		cloud:    cloud,
	}
}

// ListProviders returns the registered payment channels
// @Summary List Providers
// @Description List the payment provider channels this server can collect through
// @Tags Providers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{providers=[]string}
// @Router /providers [get]
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"providers": h.registry.Names(),
	})
}

// DiscoverDevices lists reachable devices for one provider
// @Summary Discover Devices
// @Description Enumerate payment devices reachable through the named provider
// @Tags Providers
// @Produce json
// @Security BearerAuth
// @Param provider path string true "Provider name"
// @Success 200 {object} object{devices=[]providers.Device}
// @Failure 400 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /providers/{provider}/devices [get]
func (h *ProviderHandler) DiscoverDevices(w http.ResponseWriter, r *http.Request) {
	adapter, err := h.registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	devices, err := adapter.Discover(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if devices == nil {
		devices = []providers.Device{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// TestConnection probes a specific device target
// @Summary Test Connection
// @Description Probe a device target and report reachability and latency
// @Tags Providers
// @Produce json
// @Security BearerAuth
// @Param provider path string true "Provider name"
// @Param kind query string true "Target kind (ip, serial, epi, profile)"
// @Param value query string true "Target value"
// @Success 200 {object} providers.ConnectionHealth
// @Failure 400 {object} services.ErrorResponse
// @Router /providers/{provider}/test [get]
func (h *ProviderHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	adapter, err := h.registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	target := providers.Target{
		Kind:  providers.TargetKind(r.URL.Query().Get("kind")),
		Value: r.URL.Query().Get("value"),
	}
	if target.Value == "" {
		services.SendErrorResponse(w, "value query parameter is required", http.StatusBadRequest, nil)
		return
	}

	health, err := adapter.TestConnection(r.Context(), target)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// AuthenticateCloud refreshes the cloud gateway credential
// @Summary Authenticate Cloud Gateway
// @Description Obtain or reuse the cached cloud gateway access token
// @Tags Providers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{cached=bool,expiresAt=string}
// @Failure 502 {object} services.ErrorResponse
// @Router /providers/cloud/authenticate [post]
func (h *ProviderHandler) AuthenticateCloud(w http.ResponseWriter, r *http.Request) {
	cached, expiry, err := h.cloud.Authenticate(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"cached":    cached,
		"expiresAt": expiry.Format(time.RFC3339),
	})
}
