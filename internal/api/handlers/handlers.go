// Package handlers implements the HTTP handlers for the resolution core:
// end-to-end action resolution, the normalizer service endpoints, and CRUD
// for templates, global actions, and the local network registry.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/megabot/resolution-core/internal/directory"
	"github.com/megabot/resolution-core/internal/flowengine"
	"github.com/megabot/resolution-core/internal/normalizer"
	"github.com/megabot/resolution-core/internal/processor"
	"github.com/megabot/resolution-core/internal/store"
	"github.com/megabot/resolution-core/pkg/contracts"
	pkgmw "github.com/megabot/resolution-core/pkg/middleware"
	"github.com/megabot/resolution-core/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	Processor    contracts.ActionProcessorService
	Personalizer contracts.PersonalizerService
	Networks     contracts.NetworkDirectory

	// Users and Channels are nil when no external directory is
	// configured; resolve requests must then carry the records inline.
	Users    contracts.UserDirectory
	Channels contracts.ChannelDirectory
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, p contracts.ActionProcessorService, pers contracts.PersonalizerService, networks contracts.NetworkDirectory, users contracts.UserDirectory, channels contracts.ChannelDirectory) *Handlers {
	return &Handlers{
		Store:        s,
		Processor:    p,
		Personalizer: pers,
		Networks:     networks,
		Users:        users,
		Channels:     channels,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Resolve ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// resolveRequest is the inbound shape of POST /api/v1/resolve. User and
// Channel may be inlined by the caller (channel gateways already hold
// them) or left to directory lookup by id.
type resolveRequest struct {
	NetworkID       string                  `json:"networkId,omitempty"`
	Action          models.ContextAction    `json:"action"`
	UserID          string                  `json:"userId,omitempty"`
	ChannelID       string                  `json:"channelId,omitempty"`
	User            *models.User            `json:"user,omitempty"`
	Channel         *models.Channel         `json:"channel,omitempty"`
	Conversation    *models.Conversation    `json:"conversation,omitempty"`
	IncomingMessage *models.IncomingMessage `json:"incomingMessage,omitempty"`
}

// resolveResponse is the outbound shape of POST /api/v1/resolve.
type resolveResponse struct {
	TransactionID       string                 `json:"transactionId"`
	OutgoingMessage     models.OutgoingMessage `json:"outgoingMessage"`
	ShouldContextualize bool                   `json:"shouldContextualize"`
}

// Resolve processes one context action end to end: build the BotContext,
// run it through the processor, personalize the result.
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Action.Action == "" {
		respondError(w, http.StatusBadRequest, "action.action is required")
		return
	}

	ctx := r.Context()
	networkID := req.NetworkID
	if networkID == "" {
		networkID = pkgmw.GetNetworkID(ctx)
	}

	network, err := h.Networks.GetNetworkByID(ctx, networkID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	user, err := h.resolveUser(r, &req)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	channel, err := h.resolveChannel(r, &req)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	botCtx := models.BotContext{
		TransactionID:   uuid.New().String(),
		NetworkID:       networkID,
		User:            *user,
		Action:          req.Action,
		Channel:         *channel,
		Conversation:    req.Conversation,
		IncomingMessage: req.IncomingMessage,
	}

	// The network is already in hand; serve the processor's lookup from
	// it instead of a second directory round trip.
	out, err := h.Processor.ProcessAction(ctx, botCtx, directory.StaticNetworkService{Network: *network})
	if err != nil {
		log.Warn().
			Str("transaction", botCtx.TransactionID).
			Str("network", networkID).
			Str("action", req.Action.Action).
			Err(err).
			Msg("Action resolution failed")
		respondError(w, statusFor(err), err.Error())
		return
	}

	hookResp := h.Personalizer.Personalize(ctx, *network, botCtx.WithOutgoing(*out))

	respondJSON(w, http.StatusOK, resolveResponse{
		TransactionID:       botCtx.TransactionID,
		OutgoingMessage:     hookResp.OutgoingMessage,
		ShouldContextualize: hookResp.ShouldContextualize,
	})
}

func (h *Handlers) resolveUser(r *http.Request, req *resolveRequest) (*models.User, error) {
	if req.User != nil {
		return req.User, nil
	}
	if req.UserID == "" {
		return &models.User{}, nil
	}
	if h.Users != nil {
		return h.Users.GetUserByID(r.Context(), req.UserID)
	}
	return &models.User{UserID: req.UserID}, nil
}

func (h *Handlers) resolveChannel(r *http.Request, req *resolveRequest) (*models.Channel, error) {
	if req.Channel != nil {
		return req.Channel, nil
	}
	if req.ChannelID == "" {
		return nil, errBadRequest("channel or channelId is required")
	}
	if h.Channels != nil {
		return h.Channels.GetChannelByID(r.Context(), req.ChannelID)
	}
	return nil, errBadRequest("channelId lookup requires a configured directory; inline the channel record")
}

// ══════════════════════════════════════════════════════════════
// ── Normalizer service ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type normalizeRequest struct {
	Platform models.Platform `json:"platform"`
	Action   map[string]any  `json:"action"`
}

// NormalizeAction lifts a platform-native action into the unified model.
func (h *Handlers) NormalizeAction(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Platform.Valid() {
		respondError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	action := normalizer.Normalize(req.Action, req.Platform)
	respondJSON(w, http.StatusOK, map[string]any{"action": action})
}

type denormalizeRequest struct {
	Platform models.Platform `json:"platform"`
	Action   json.RawMessage `json:"action"`
}

// DenormalizeAction projects a unified action back to its platform shape.
func (h *Handlers) DenormalizeAction(w http.ResponseWriter, r *http.Request) {
	var req denormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Platform.Valid() {
		respondError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	action, err := models.UnmarshalAction(req.Action)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	native, err := normalizer.Denormalize(action, req.Platform)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"action": native})
}

// ══════════════════════════════════════════════════════════════
// ── Template Handlers ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	networkID := pkgmw.GetNetworkID(r.Context())
	templates, err := h.Store.ListTemplates(r.Context(), networkID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	respondJSON(w, http.StatusOK, templates)
}

func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	networkID := pkgmw.GetNetworkID(r.Context())
	tpl, err := h.Store.GetTemplate(r.Context(), networkID, chi.URLParam(r, "templateId"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tpl)
}

func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	networkID := pkgmw.GetNetworkID(r.Context())
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	tpl.NetworkID = networkID
	tpl.CreatedAt = time.Now().UTC()
	tpl.UpdatedAt = tpl.CreatedAt

	if err := tpl.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.CreateTemplate(r.Context(), &tpl); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("template", tpl.ID).Str("network", networkID).Msg("Template created")
	respondJSON(w, http.StatusCreated, tpl)
}

func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	networkID := pkgmw.GetNetworkID(r.Context())
	id := chi.URLParam(r, "templateId")

	existing, err := h.Store.GetTemplate(r.Context(), networkID, id)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	var tpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tpl.ID = id
	tpl.NetworkID = networkID
	tpl.CreatedAt = existing.CreatedAt
	tpl.UpdatedAt = time.Now().UTC()

	if err := tpl.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.UpdateTemplate(r.Context(), &tpl); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tpl)
}

func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	networkID := pkgmw.GetNetworkID(r.Context())
	if err := h.Store.DeleteTemplate(r.Context(), networkID, chi.URLParam(r, "templateId")); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════
// ── Global Action Handlers ───────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListGlobalActions(w http.ResponseWriter, r *http.Request) {
	networkID := pkgmw.GetNetworkID(r.Context())
	actions, err := h.Store.ListGlobalActions(r.Context(), networkID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if actions == nil {
		actions = []models.GlobalAction{}
	}
	respondJSON(w, http.StatusOK, actions)
}

func (h *Handlers) CreateGlobalAction(w http.ResponseWriter, r *http.Request) {
	var ga models.GlobalAction
	if err := json.NewDecoder(r.Body).Decode(&ga); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if ga.Payload == "" || ga.Action.Action == "" {
		respondError(w, http.StatusBadRequest, "payload and action.action are required")
		return
	}
	if ga.Condition != "" {
		if err := processor.ValidateCondition(ga.Condition); err != nil {
			respondError(w, http.StatusBadRequest, "invalid condition: "+err.Error())
			return
		}
	}

	networkID := pkgmw.GetNetworkID(r.Context())
	if ga.ID == "" {
		ga.ID = uuid.New().String()
	}
	ga.NetworkID = networkID
	ga.CreatedAt = time.Now().UTC()
	ga.UpdatedAt = ga.CreatedAt

	if err := h.Store.CreateGlobalAction(r.Context(), &ga); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("global_action", ga.ID).Str("payload", ga.Payload).Str("network", networkID).Msg("Global action registered")
	respondJSON(w, http.StatusCreated, ga)
}

func (h *Handlers) UpdateGlobalAction(w http.ResponseWriter, r *http.Request) {
	networkID := pkgmw.GetNetworkID(r.Context())
	id := chi.URLParam(r, "globalActionId")

	var ga models.GlobalAction
	if err := json.NewDecoder(r.Body).Decode(&ga); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if ga.Condition != "" {
		if err := processor.ValidateCondition(ga.Condition); err != nil {
			respondError(w, http.StatusBadRequest, "invalid condition: "+err.Error())
			return
		}
	}
	ga.ID = id
	ga.NetworkID = networkID
	ga.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateGlobalAction(r.Context(), &ga); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ga)
}

func (h *Handlers) DeleteGlobalAction(w http.ResponseWriter, r *http.Request) {
	networkID := pkgmw.GetNetworkID(r.Context())
	if err := h.Store.DeleteGlobalAction(r.Context(), networkID, chi.URLParam(r, "globalActionId")); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════
// ── Network Handlers (local registry) ────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := h.Store.ListNetworks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if networks == nil {
		networks = []models.Network{}
	}
	respondJSON(w, http.StatusOK, networks)
}

func (h *Handlers) GetNetwork(w http.ResponseWriter, r *http.Request) {
	n, err := h.Store.GetNetwork(r.Context(), chi.URLParam(r, "networkId"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (h *Handlers) CreateNetwork(w http.ResponseWriter, r *http.Request) {
	var n models.Network
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if n.NetworkID == "" {
		respondError(w, http.StatusBadRequest, "networkId is required")
		return
	}

	if err := h.Store.CreateNetwork(r.Context(), &n); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("network", n.NetworkID).Msg("Network registered")
	respondJSON(w, http.StatusCreated, n)
}

func (h *Handlers) UpdateNetwork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "networkId")

	var n models.Network
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	n.NetworkID = id

	if err := h.Store.UpdateNetwork(r.Context(), &n); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (h *Handlers) DeleteNetwork(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteNetwork(r.Context(), chi.URLParam(r, "networkId")); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequestError(msg) }

// statusFor maps core errors to HTTP statuses.
func statusFor(err error) int {
	var (
		notFound    *store.ErrNotFound
		unresolved  *processor.UnresolvedActionError
		unsupported *normalizer.UnsupportedActionError
		hopLimit    *flowengine.HopLimitError
		badReq      badRequestError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.As(err, &unresolved), errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity
	case errors.As(err, &hopLimit):
		return http.StatusBadGateway
	case flowengine.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
