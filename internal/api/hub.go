package api

import (
	"context"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/gateway"
	"github.com/hubline-chat/hubline-server/internal/httputil"
	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/index"
	"github.com/hubline-chat/hubline-server/internal/permission"
	"github.com/hubline-chat/hubline-server/internal/protocol"
	"github.com/hubline-chat/hubline-server/internal/user"
)

// HubHandler serves hub lifecycle and membership endpoints.
type HubHandler struct {
	hubs     hub.Repository
	users    user.Repository
	indexes  *index.Manager
	registry *gateway.Registry
	router   *gateway.Router
	dataDir  string
	log      zerolog.Logger
}

// NewHubHandler creates a hub handler.
func NewHubHandler(
	hubs hub.Repository,
	users user.Repository,
	indexes *index.Manager,
	registry *gateway.Registry,
	router *gateway.Router,
	dataDir string,
	logger zerolog.Logger,
) *HubHandler {
	return &HubHandler{
		hubs:     hubs,
		users:    users,
		indexes:  indexes,
		registry: registry,
		router:   router,
		dataDir:  dataDir,
		log:      logger,
	}
}

// CreateHubRequest is the body of POST /hubs.
type CreateHubRequest struct {
	Name string `json:"name"`
}

// UpdateHubRequest is the body of PATCH /hubs/:hub.
type UpdateHubRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateHub handles POST /api/v1/hubs. The caller becomes the owner and
// first member.
func (h *HubHandler) CreateHub(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}

	var body CreateHubRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, protocol.NewError(protocol.CodeInvalidName))
	}

	snap, err := hub.New(body.Name, caller)
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}
	if err := h.hubs.Save(c, snap); err != nil {
		h.log.Error().Err(err).Str("handler", "hub").Msg("Save hub failed")
		return httputil.Fail(c, protocol.DataError(protocol.DataWrite))
	}
	h.recordMembership(c, caller, snap.ID, true)

	return httputil.SuccessStatus(c, fiber.StatusCreated, snap)
}

// GetHub handles GET /api/v1/hubs/:hub. Members only.
func (h *HubHandler) GetHub(c fiber.Ctx) error {
	snap, _, wireErr := h.loadMember(c)
	if wireErr != nil {
		return httputil.Fail(c, wireErr)
	}
	return httputil.Success(c, snap)
}

// UpdateHub handles PATCH /api/v1/hubs/:hub. Requires the Configure
// permission; emits Renamed and DescriptionUpdated.
func (h *HubHandler) UpdateHub(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}

	var body UpdateHubRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, protocol.NewError(protocol.CodeInvalidName))
	}

	var kinds []protocol.HubUpdateKind
	snap, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		member, err := s.GetMember(caller)
		if err != nil {
			return err
		}
		if !member.HasHubPermission(s, permission.HubConfigure) {
			return protocol.MissingHubPermission(permission.HubConfigure)
		}
		if body.Name != nil && *body.Name != s.Name {
			if err := hub.ValidateName(*body.Name); err != nil {
				return err
			}
			s.Name = *body.Name
			kinds = append(kinds, protocol.HubKind(protocol.HubRenamed))
		}
		if body.Description != nil && *body.Description != s.Description {
			s.Description = *body.Description
			kinds = append(kinds, protocol.HubKind(protocol.HubDescriptionUpdated))
		}
		return nil
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}

	for _, kind := range kinds {
		h.router.HubUpdated(hubID, kind)
	}
	return httputil.Success(c, snap)
}

// DeleteHub handles DELETE /api/v1/hubs/:hub. Owner only; emits Deleted,
// drops subscriptions, indexes, and all hub data.
func (h *HubHandler) DeleteHub(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}

	snap, err := h.hubs.Load(c, hubID)
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}
	if snap.Owner != caller {
		return httputil.Fail(c, protocol.NewError(protocol.CodeMissingHubPermission))
	}

	// Subscribers hear about the deletion before their edges are dropped.
	h.router.HubUpdated(hubID, protocol.HubKind(protocol.HubDeleted))
	h.registry.DisconnectHub(hubID)

	if err := h.indexes.CloseHub(hubID); err != nil {
		h.log.Warn().Err(err).Stringer("hub_id", hubID).Msg("Index close failed during hub delete")
	}
	if err := h.hubs.Delete(c, hubID); err != nil {
		h.log.Error().Err(err).Stringer("hub_id", hubID).Msg("Delete hub failed")
		return httputil.Fail(c, protocol.DataError(protocol.DataDelete))
	}

	for memberID := range snap.Members {
		h.recordMembership(c, memberID, hubID, false)
	}

	return httputil.Success(c, fiber.Map{"deleted": hubID})
}

// JoinHub handles POST /api/v1/hubs/:hub/join.
func (h *HubHandler) JoinHub(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}

	var joined *hub.Member
	_, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		m, err := s.Join(caller)
		if err != nil {
			return err
		}
		joined = m
		return nil
	})
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}
	h.recordMembership(c, caller, hubID, true)

	h.router.HubUpdated(hubID, protocol.UserKind(protocol.UserJoined, caller))
	return httputil.Success(c, joined)
}

// LeaveHub handles POST /api/v1/hubs/:hub/leave.
func (h *HubHandler) LeaveHub(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeHubNotFound))
	}

	if _, err := h.hubs.Update(c, hubID, func(s *hub.Hub) error {
		return s.Leave(caller)
	}); err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}
	h.recordMembership(c, caller, hubID, false)

	h.router.HubUpdated(hubID, protocol.UserKind(protocol.UserLeft, caller))
	return httputil.Success(c, fiber.Map{"left": hubID})
}

// RemoveChannelData deletes a channel's message journal, index, and recovery
// log from disk.
func (h *HubHandler) RemoveChannelData(hubID, channelID uuid.UUID) error {
	return os.RemoveAll(hub.ChannelDir(h.dataDir, hubID, channelID))
}

// loadMember loads the hub of the :hub route parameter and the caller's
// member record in it.
func (h *HubHandler) loadMember(c fiber.Ctx) (*hub.Hub, *hub.Member, *protocol.Error) {
	caller, ok := callerID(c)
	if !ok {
		return nil, nil, protocol.NewError(protocol.CodeNotAuthenticated)
	}
	hubID, ok := paramID(c, "hub")
	if !ok {
		return nil, nil, protocol.NewError(protocol.CodeHubNotFound)
	}
	snap, err := h.hubs.Load(c, hubID)
	if err != nil {
		return nil, nil, gateway.WireError(err)
	}
	member, err := snap.GetMember(caller)
	if err != nil {
		return nil, nil, gateway.WireError(err)
	}
	return snap, member, nil
}

// recordMembership mirrors a join or leave onto the user record,
// best-effort: the hub snapshot stays the source of truth.
func (h *HubHandler) recordMembership(ctx context.Context, userID, hubID uuid.UUID, joined bool) {
	_, err := h.users.Update(ctx, userID, func(u *user.User) error {
		if joined {
			u.AddHub(hubID)
		} else {
			u.RemoveHub(hubID)
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).
			Stringer("user_id", userID).
			Stringer("hub_id", hubID).
			Msg("Failed to mirror membership onto user record")
	}
}
