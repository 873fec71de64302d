package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"classroom/internal/attendance"
	"classroom/internal/auth"
	"classroom/internal/claims"
	"classroom/internal/config"
	"classroom/internal/httpmiddleware"
	"classroom/internal/realtime"
	"classroom/internal/reservations"
	"classroom/internal/rooms"
	"classroom/internal/roster"
	"classroom/internal/sessions"
)

// Handler carries the services behind the HTTP surface.
type Handler struct {
	cfg          config.App
	reservations *reservations.Service
	sessions     *sessions.Service
	coordinator  *claims.Coordinator
	catalog      rooms.Catalog
	roster       roster.Store
	records      attendance.Store
	hub          *realtime.Hub
}

// New builds the handler.
func New(cfg config.App, res *reservations.Service, sess *sessions.Service,
	coord *claims.Coordinator, catalog rooms.Catalog, r roster.Store,
	records attendance.Store, hub *realtime.Hub) *Handler {
	return &Handler{
		cfg:          cfg,
		reservations: res,
		sessions:     sess,
		coordinator:  coord,
		catalog:      catalog,
		roster:       r,
		records:      records,
		hub:          hub,
	}
}

// Register mounts all routes on r. The bearer middleware is applied to the
// whole /v1 group except token issuance, and the rate limiter sits behind it
// so authenticated callers are budgeted per subject rather than per IP. The
// token endpoint carries no claims, so the same limiter keys it by IP.
func (h *Handler) Register(r *gin.Engine) {
	limit := httpmiddleware.NewTokenBucket(h.cfg.RateLimitPerMin, h.cfg.RateLimitPerMin).GinMiddleware()

	r.POST("/v1/auth/token", limit, h.issueToken)

	v1 := r.Group("/v1", auth.Bearer(h.cfg.JWTSigningKey, h.cfg.JWTIssuer), limit)

	teacher := v1.Group("", auth.RequireRole(auth.RoleTeacher))
	teacher.POST("/reservations", h.createReservation)
	teacher.POST("/reservations/rebind", h.rebindReservation)
	teacher.DELETE("/reservations/:id", h.cancelReservation)
	teacher.POST("/classes/start", h.startClass)
	teacher.POST("/sessions/:id/close", h.closeSession)
	teacher.POST("/sessions/:id/records/:studentID", h.overrideRecord)

	v1.GET("/rooms/:id/schedule", h.roomSchedule)
	v1.GET("/rooms/:id/seat-map", h.seatMap)
	v1.GET("/sessions/:id/summary", h.sessionSummary)
	v1.POST("/sessions/:id/seats/:seat/claim", h.claimSeat)
	v1.POST("/sessions/:id/seats/:seat/release", h.releaseSeat)
	v1.GET("/ws/rooms/:id", realtime.ServeWS(h.hub, h.cfg.SendQueueSize))
}

func (h *Handler) issueToken(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Role    string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != auth.RoleTeacher && req.Role != auth.RoleStudent {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be teacher or student"})
		return
	}
	tokens, err := auth.Issue(req.Subject, req.Role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

type reservationRequest struct {
	RoomID    string `json:"room_id" binding:"required"`
	CourseID  string `json:"course_id" binding:"required"`
	Date      string `json:"date"`
	Weekday   int    `json:"weekday"`
	Start     string `json:"start" binding:"required"` // HH:MM
	End       string `json:"end" binding:"required"`   // HH:MM
	Recurring bool   `json:"recurring"`
}

func (req reservationRequest) toReservation() (reservations.Reservation, error) {
	start, err := parseClock(req.Start)
	if err != nil {
		return reservations.Reservation{}, err
	}
	end, err := parseClock(req.End)
	if err != nil {
		return reservations.Reservation{}, err
	}
	return reservations.Reservation{
		RoomID:    req.RoomID,
		CourseID:  req.CourseID,
		Date:      req.Date,
		Weekday:   time.Weekday(req.Weekday),
		StartMin:  start,
		EndMin:    end,
		Recurring: req.Recurring,
	}, nil
}

func (h *Handler) createReservation(c *gin.Context) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := req.toReservation()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.reservations.Reserve(c.Request.Context(), res)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) rebindReservation(c *gin.Context) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := req.toReservation()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.reservations.Rebind(c.Request.Context(), res)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) cancelReservation(c *gin.Context) {
	if err := h.reservations.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h *Handler) roomSchedule(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required"})
		return
	}
	sched, err := h.reservations.ScheduleFor(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": sched})
}

func (h *Handler) startClass(c *gin.Context) {
	var req struct {
		CourseID string `json:"course_id" binding:"required"`
		RoomID   string `json:"room_id" binding:"required"`
		Date     string `json:"date"`
		Slot     string `json:"slot"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	sess, err := h.sessions.Open(ctx, req.CourseID, req.RoomID, req.Date, req.Slot)
	if err != nil {
		h.respondError(c, err)
		return
	}
	room, err := h.catalog.Get(ctx, sess.RoomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	seatMap, err := h.coordinator.SeatMapFor(ctx, sess)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "room": room, "seat_map": seatMap})
}

func (h *Handler) closeSession(c *gin.Context) {
	sess, err := h.sessions.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *Handler) sessionSummary(c *gin.Context) {
	sum, err := h.sessions.Summarize(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) claimSeat(c *gin.Context) {
	var req struct {
		StudentID   string `json:"student_id"`
		StudentCode string `json:"student_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	studentID := req.StudentID
	if studentID == "" && req.StudentCode != "" {
		student, err := h.roster.ResolveCode(ctx, req.StudentCode)
		if err != nil {
			h.respondError(c, err)
			return
		}
		studentID = student.ID
	}
	if studentID == "" {
		// students claiming for themselves need no body at all
		if cl, ok := auth.FromContext(c); ok && cl.Role == auth.RoleStudent {
			studentID = cl.Subject
		}
	}
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student_id or student_code required"})
		return
	}

	claim, err := h.coordinator.Claim(ctx, c.Param("id"), studentID, strings.ToUpper(c.Param("seat")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, claim)
}

func (h *Handler) releaseSeat(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentID := req.StudentID
	if studentID == "" {
		if cl, ok := auth.FromContext(c); ok && cl.Role == auth.RoleStudent {
			studentID = cl.Subject
		}
	}
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student_id required"})
		return
	}
	if err := h.coordinator.Release(c.Request.Context(), c.Param("id"), strings.ToUpper(c.Param("seat")), studentID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": true})
}

func (h *Handler) overrideRecord(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := attendance.Status(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", req.Status)})
		return
	}
	ctx := c.Request.Context()
	sess, err := h.sessions.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	rec := attendance.Record{
		StudentID: c.Param("studentID"),
		CourseID:  sess.CourseID,
		Date:      sess.Date,
		Slot:      sess.Slot,
		Status:    status,
		Method:    "manual",
	}
	if err := h.records.Upsert(ctx, rec); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) seatMap(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")
	date := c.Query("date")
	slot := c.Query("slot")

	if date != "" && slot != "" {
		sess, err := h.sessions.ActiveByRoom(ctx, roomID, date, slot)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if sess != nil {
			seatMap, err := h.coordinator.SeatMapFor(ctx, sess)
			if err != nil {
				h.respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, seatMap)
			return
		}
	}

	// no active session: render the bare template
	room, err := h.catalog.Get(ctx, roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	seatMap := rooms.BuildSeatMap(room, nil)
	c.JSON(http.StatusOK, seatMap)
}

// respondError maps domain failures onto HTTP statuses with enough context
// for the caller to react.
func (h *Handler) respondError(c *gin.Context, err error) {
	var conflict *reservations.ConflictError
	var seatTaken *claims.SeatTakenError
	var alreadyClaimed *claims.AlreadyClaimedError

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "conflict": conflict.Existing})
	case errors.As(err, &seatTaken):
		c.JSON(http.StatusConflict, gin.H{"error": seatTaken.Error(), "seat": seatTaken.SeatCode, "holder": seatTaken.HolderID})
	case errors.As(err, &alreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": alreadyClaimed.Error(), "seat": alreadyClaimed.SeatCode})
	case errors.Is(err, claims.ErrSeatUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, claims.ErrCheckInWindowClosed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, sessions.ErrNotActive), errors.Is(err, sessions.ErrClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sessions.ErrNotFound),
		errors.Is(err, rooms.ErrNotFound),
		errors.Is(err, reservations.ErrNotFound),
		errors.Is(err, roster.ErrUnknownStudent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// parseClock converts "HH:MM" into minutes from midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hh*60 + mm, nil
}
