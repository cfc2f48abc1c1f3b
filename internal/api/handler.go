package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/decoder"
	"qrattend/internal/history"
	"qrattend/internal/i18n"
)

// maxImageBytes bounds uploaded scan images.
const maxImageBytes = 8 << 20

// Handler serves the scan, history and admin endpoints.
type Handler struct {
	reconciler *attendance.Reconciler
	admin      *attendance.Admin
	history    history.Store
	decoder    *decoder.Client
	tr         *i18n.Translator
	tokens     TokenConfig
	log        *slog.Logger
}

// TokenConfig controls session token issuance.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	TTL        time.Duration
	// AdminKey grants the admin role when presented at session creation. Empty disables admin sessions.
	AdminKey string
}

type scanResponse struct {
	Outcome        string     `json:"outcome"`
	Message        string     `json:"message"`
	EventTitle     string     `json:"event_title,omitempty"`
	MarkedAt       *time.Time `json:"marked_at,omitempty"`
	RegistrationID string     `json:"registration_id,omitempty"`
	Email          string     `json:"registration_email,omitempty"`
}

const localizerKey = "localizer"

// localize negotiates the response language once per request.
func localize(tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := tr.For(c.GetHeader("Accept-Language"))
		c.Set(localizerKey, loc)
		c.Header("Content-Language", loc.Language())
		c.Next()
	}
}

func (h *Handler) loc(c *gin.Context) *i18n.Localizer {
	if v, ok := c.Get(localizerKey); ok {
		if loc, ok := v.(*i18n.Localizer); ok {
			return loc
		}
	}
	return h.tr.For(c.GetHeader("Accept-Language"))
}

// station is the device that owns the caller's scan history.
func station(c *gin.Context) string {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Subject
}

func (h *Handler) errorJSON(c *gin.Context, status int, key string, data map[string]any) {
	c.JSON(status, gin.H{"error": h.loc(c).T(key, data)})
}

func (h *Handler) createSession(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
		AdminKey string `json:"admin_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := auth.RoleScanner
	if req.AdminKey != "" {
		if h.tokens.AdminKey == "" || subtle.ConstantTimeCompare([]byte(req.AdminKey), []byte(h.tokens.AdminKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		role = auth.RoleAdmin
	}

	tok, err := auth.Issue(req.DeviceID, role, h.tokens.Issuer, h.tokens.SigningKey, h.tokens.TTL)
	if err != nil {
		h.log.Error("token issue failed", "device_id", req.DeviceID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	h.log.Info("session created", "device_id", req.DeviceID, "session", tok.SessionID, "role", role)
	c.JSON(http.StatusCreated, tok)
}

func (h *Handler) scan(c *gin.Context) {
	var req struct {
		Data string `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.reconcile(c, req.Data)
}

func (h *Handler) scanImage(c *gin.Context) {
	if !h.decoder.Enabled() {
		h.errorJSON(c, http.StatusServiceUnavailable, "decoder_unavailable", nil)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image field required"})
		return
	}
	defer file.Close()

	decoded, err := h.decoder.Decode(c.Request.Context(), filepath.Base(header.Filename), file)
	switch {
	case errors.Is(err, decoder.ErrNoCode):
		h.errorJSON(c, http.StatusUnprocessableEntity, "scan_no_code", nil)
		return
	case err != nil:
		h.log.Warn("decode failed", "error", err)
		h.errorJSON(c, http.StatusBadGateway, "error_unexpected", nil)
		return
	}
	h.reconcile(c, decoded.Text)
}

func (h *Handler) reconcile(c *gin.Context, data string) {
	claims, _ := auth.ClaimsFrom(c)
	res := h.reconciler.ReconcileFor(c.Request.Context(), claims.Subject, claims.SessionID(), data)

	out := scanResponse{
		Outcome:        res.Outcome.String(),
		Message:        message(h.loc(c), res),
		EventTitle:     res.EventTitle,
		RegistrationID: res.Identifier,
	}
	if !res.MarkedAt.IsZero() {
		at := res.MarkedAt
		out.MarkedAt = &at
	}
	if res.Registration != nil {
		out.Email = res.Registration.Email
	}
	c.JSON(statusFor(res.Outcome), out)
}

func message(loc *i18n.Localizer, res attendance.Result) string {
	switch res.Outcome {
	case attendance.Marked:
		return loc.T("scan_marked", map[string]any{"EventTitle": res.EventTitle})
	case attendance.TransientError:
		return loc.T("scan_transient_error", map[string]any{"Reason": res.Message})
	default:
		return loc.T("scan_"+res.Outcome.String(), nil)
	}
}

func statusFor(o attendance.Outcome) int {
	switch o {
	case attendance.Marked, attendance.AlreadyMarked:
		return http.StatusOK
	case attendance.NotFound:
		return http.StatusNotFound
	case attendance.NotApproved:
		return http.StatusConflict
	case attendance.Busy:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handler) listHistory(c *gin.Context) {
	entries, err := h.history.List(c.Request.Context(), station(c))
	if err != nil {
		h.log.Error("list history failed", "error", err)
		h.errorJSON(c, http.StatusInternalServerError, "error_unexpected", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) deleteHistory(c *gin.Context) {
	err := h.history.Delete(c.Request.Context(), station(c), c.Param("id"))
	switch {
	case errors.Is(err, history.ErrEntryNotFound):
		h.errorJSON(c, http.StatusNotFound, "history_not_found", nil)
	case err != nil:
		h.log.Error("delete history failed", "error", err)
		h.errorJSON(c, http.StatusInternalServerError, "error_unexpected", nil)
	default:
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) clearHistory(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context(), station(c)); err != nil {
		h.log.Error("clear history failed", "error", err)
		h.errorJSON(c, http.StatusInternalServerError, "error_unexpected", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": h.loc(c).T("history_cleared", nil)})
}

func (h *Handler) listEvents(c *gin.Context) {
	events, err := h.admin.ListEvents(c.Request.Context())
	if err != nil {
		h.log.Error("list events failed", "error", err)
		h.errorJSON(c, http.StatusInternalServerError, "error_unexpected", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) roster(c *gin.Context) {
	roster, err := h.admin.Roster(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, attendance.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Error("roster failed", "event_id", c.Param("id"), "error", err)
		h.errorJSON(c, http.StatusInternalServerError, "error_unexpected", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roster":  roster,
		"summary": h.loc(c).T("roster_summary", map[string]any{"Present": roster.Present, "Total": roster.Total}),
	})
}

func (h *Handler) toggle(c *gin.Context) {
	status, err := h.admin.Toggle(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, attendance.ErrRegistrationNotFound):
		h.errorJSON(c, http.StatusNotFound, "scan_not_found", nil)
		return
	case err != nil:
		h.log.Error("toggle failed", "id", c.Param("id"), "error", err)
		h.errorJSON(c, http.StatusServiceUnavailable, "error_unexpected", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attendance": status,
		"message":    h.loc(c).T("toggle_done", map[string]any{"Attendance": string(status)}),
	})
}

func (h *Handler) reset(c *gin.Context) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Confirm {
		h.errorJSON(c, http.StatusBadRequest, "reset_confirm_required", nil)
		return
	}
	if err := h.admin.ResetAll(c.Request.Context(), c.Param("id")); err != nil {
		h.log.Error("reset failed", "event_id", c.Param("id"), "error", err)
		h.errorJSON(c, http.StatusServiceUnavailable, "error_unexpected", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": h.loc(c).T("reset_done", nil)})
}
