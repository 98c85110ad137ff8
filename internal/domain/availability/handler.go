package availability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/praxis/praxis/internal/platform/auth"
	"github.com/praxis/praxis/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePractitioner, auth.RoleAssistant))

	g.POST("/availability/check", h.CheckAvailability)

	g.GET("/schedule", h.ListSlots)
	g.POST("/schedule/bulk-set", h.BulkSet)
	g.POST("/schedule/reset", h.ResetToDefaults)
	g.PATCH("/schedule/:id", h.UpdateSlot)
	g.DELETE("/schedule/:id", h.DeleteSlot)

	g.GET("/exceptions", h.ListExceptions)
	g.GET("/exceptions/overlapping", h.ListOverlappingExceptions)
	g.GET("/exceptions/:id", h.GetException)
	g.POST("/exceptions", h.CreateException)
	g.PATCH("/exceptions/:id", h.UpdateException)
	g.DELETE("/exceptions/:id", h.DeleteException)
}

type errorBody struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func badRequest(field, msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errorBody{Message: msg, Field: field})
}

// httpError maps the domain error taxonomy onto HTTP responses.
func httpError(c echo.Context, err error) error {
	var ve *ValidationError
	var nf *NotFoundError
	var ce *ConflictError
	switch {
	case errors.As(err, &ve):
		return badRequest(ve.Field, ve.Message)
	case errors.As(err, &nf):
		return echo.NewHTTPError(http.StatusNotFound, errorBody{Message: nf.Error()})
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, errorBody{Message: ce.Message})
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, errorBody{Message: "request timed out"})
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("availability request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, errorBody{Message: "internal server error"})
}

func callerPractice(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.PracticeIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, errorBody{Message: "caller is not assigned to a practice"})
	}
	return id, nil
}

// targetPractitioner resolves whose schedule a request is about. Practitioners
// default to themselves; naming someone else requires the assistant role.
func targetPractitioner(c echo.Context, raw string) (uuid.UUID, error) {
	ctx := c.Request().Context()
	caller := auth.UserIDFromContext(ctx)

	if raw == "" {
		if !auth.HasRole(ctx, auth.RolePractitioner) {
			return uuid.Nil, badRequest("practitioner_id", "practitioner_id is required")
		}
		id, err := uuid.Parse(caller)
		if err != nil {
			return uuid.Nil, badRequest("practitioner_id", "practitioner_id is required")
		}
		return id, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("practitioner_id", "invalid practitioner_id")
	}
	if err := canActFor(c, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func canActFor(c echo.Context, practitionerID uuid.UUID) error {
	ctx := c.Request().Context()
	if practitionerID.String() == auth.UserIDFromContext(ctx) ||
		auth.HasRole(ctx, auth.RoleAssistant) || auth.HasRole(ctx, auth.RoleAdmin) {
		return nil
	}
	return echo.NewHTTPError(http.StatusForbidden, errorBody{Message: "cannot act on behalf of another practitioner"})
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, badRequest("id", "invalid id")
	}
	return id, nil
}

func queryTime(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, badRequest(name, name+" is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, badRequest(name, name+" must be an RFC 3339 timestamp")
	}
	return t, nil
}

// scope returns the caller's practice and the practitioner a request targets.
func scope(c echo.Context, rawPractitioner string) (uuid.UUID, uuid.UUID, error) {
	practiceID, err := callerPractice(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	practitionerID, err := targetPractitioner(c, rawPractitioner)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return practiceID, practitionerID, nil
}

// authorizeSlot checks the caller may edit the slot's practitioner.
func (h *Handler) authorizeSlot(c echo.Context, practiceID, id uuid.UUID) error {
	slot, err := h.svc.GetSlot(c.Request().Context(), practiceID, id)
	if err != nil {
		return httpError(c, err)
	}
	return canActFor(c, slot.PractitionerID)
}

func (h *Handler) authorizeException(c echo.Context, practiceID, id uuid.UUID) error {
	exc, err := h.svc.GetException(c.Request().Context(), practiceID, id)
	if err != nil {
		return httpError(c, err)
	}
	return canActFor(c, exc.PractitionerID)
}

// -- Availability --

type checkAvailabilityRequest struct {
	PractitionerID string    `json:"practitioner_id"`
	Modality       Modality  `json:"modality"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	var req checkAvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("", "invalid request body")
	}
	practiceID, practitionerID, err := scope(c, req.PractitionerID)
	if err != nil {
		return err
	}
	result, err := h.svc.CheckAvailability(c.Request().Context(), practiceID, CheckRequest{
		PractitionerID: practitionerID,
		Modality:       req.Modality,
		Start:          req.Start,
		End:            req.End,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// -- Weekly schedule --

type bulkSetRequest struct {
	PractitionerID string     `json:"practitioner_id"`
	Days           []int      `json:"days"`
	Modality       Modality   `json:"modality"`
	StartTime      *TimeOfDay `json:"start_time"`
	EndTime        *TimeOfDay `json:"end_time"`
}

type resetRequest struct {
	PractitionerID string `json:"practitioner_id"`
}

func nonNilSlots(slots []*WeeklySlot) []*WeeklySlot {
	if slots == nil {
		return []*WeeklySlot{}
	}
	return slots
}

func nonNilExceptions(items []*Exception) []*Exception {
	if items == nil {
		return []*Exception{}
	}
	return items
}

func (h *Handler) ListSlots(c echo.Context) error {
	practiceID, practitionerID, err := scope(c, c.QueryParam("practitioner_id"))
	if err != nil {
		return err
	}
	slots, err := h.svc.ListSlots(c.Request().Context(), practiceID, practitionerID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, nonNilSlots(slots))
}

func (h *Handler) BulkSet(c echo.Context) error {
	var req bulkSetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("", "invalid request body")
	}
	if req.StartTime == nil {
		return badRequest("start_time", "start_time is required")
	}
	if req.EndTime == nil {
		return badRequest("end_time", "end_time is required")
	}
	practiceID, practitionerID, err := scope(c, req.PractitionerID)
	if err != nil {
		return err
	}
	days := make([]time.Weekday, len(req.Days))
	for i, d := range req.Days {
		days[i] = time.Weekday(d)
	}
	slots, err := h.svc.BulkSet(c.Request().Context(), practiceID, BulkSetRequest{
		PractitionerID: practitionerID,
		Days:           days,
		Modality:       req.Modality,
		StartTime:      *req.StartTime,
		EndTime:        *req.EndTime,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, nonNilSlots(slots))
}

func (h *Handler) ResetToDefaults(c echo.Context) error {
	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("", "invalid request body")
	}
	practiceID, practitionerID, err := scope(c, req.PractitionerID)
	if err != nil {
		return err
	}
	slots, err := h.svc.ResetToDefaults(c.Request().Context(), practiceID, practitionerID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, nonNilSlots(slots))
}

func (h *Handler) UpdateSlot(c echo.Context) error {
	practiceID, err := callerPractice(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch SlotPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest("", "invalid request body")
	}
	if err := h.authorizeSlot(c, practiceID, id); err != nil {
		return err
	}
	slot, err := h.svc.UpdateSlot(c.Request().Context(), practiceID, id, patch)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	practiceID, err := callerPractice(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.authorizeSlot(c, practiceID, id); err != nil {
		return err
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), practiceID, id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Exceptions --

type createExceptionRequest struct {
	PractitionerID string          `json:"practitioner_id"`
	Status         ExceptionStatus `json:"status"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Description    *string         `json:"description"`
}

func (h *Handler) ListExceptions(c echo.Context) error {
	practiceID, practitionerID, err := scope(c, c.QueryParam("practitioner_id"))
	if err != nil {
		return err
	}
	activeOnly := false
	if raw := c.QueryParam("active_only"); raw != "" {
		activeOnly, err = strconv.ParseBool(raw)
		if err != nil {
			return badRequest("active_only", "active_only must be true or false")
		}
	}
	pg, err := pagination.Parse(c)
	if err != nil {
		var pe *pagination.InvalidParamError
		if errors.As(err, &pe) {
			return badRequest(pe.Param, pe.Error())
		}
		return badRequest("", err.Error())
	}
	items, total, err := h.svc.ListExceptions(c.Request().Context(), practiceID, practitionerID, activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) ListOverlappingExceptions(c echo.Context) error {
	practiceID, practitionerID, err := scope(c, c.QueryParam("practitioner_id"))
	if err != nil {
		return err
	}
	start, err := queryTime(c, "start")
	if err != nil {
		return err
	}
	end, err := queryTime(c, "end")
	if err != nil {
		return err
	}
	items, err := h.svc.ListOverlappingExceptions(c.Request().Context(), practiceID, practitionerID, start, end)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, nonNilExceptions(items))
}

func (h *Handler) GetException(c echo.Context) error {
	practiceID, err := callerPractice(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	exc, err := h.svc.GetException(c.Request().Context(), practiceID, id)
	if err != nil {
		return httpError(c, err)
	}
	if err := canActFor(c, exc.PractitionerID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exc)
}

func (h *Handler) CreateException(c echo.Context) error {
	var req createExceptionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("", "invalid request body")
	}
	practiceID, practitionerID, err := scope(c, req.PractitionerID)
	if err != nil {
		return err
	}
	exc, err := h.svc.CreateException(c.Request().Context(), practiceID, CreateExceptionRequest{
		PractitionerID: practitionerID,
		Status:         req.Status,
		Start:          req.Start,
		End:            req.End,
		Description:    req.Description,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, exc)
}

func (h *Handler) UpdateException(c echo.Context) error {
	practiceID, err := callerPractice(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch ExceptionPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest("", "invalid request body")
	}
	if err := h.authorizeException(c, practiceID, id); err != nil {
		return err
	}
	exc, err := h.svc.UpdateException(c.Request().Context(), practiceID, id, patch)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, exc)
}

func (h *Handler) DeleteException(c echo.Context) error {
	practiceID, err := callerPractice(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.authorizeException(c, practiceID, id); err != nil {
		return err
	}
	if err := h.svc.DeleteException(c.Request().Context(), practiceID, id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
