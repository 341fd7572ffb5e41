package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memberportal/internal/attendance"
	"memberportal/internal/docstore"
	"memberportal/internal/identity"
	"memberportal/internal/session"
	"memberportal/internal/token"
	"memberportal/internal/verification"
	"memberportal/internal/whitelist"
)

// PendingLoginCollection bridges the two-step 2FA login: the verified
// identity is stashed here between the code being issued and consumed.
const PendingLoginCollection = "pending_logins"

// Handler exposes the portal's operation entry points over HTTP.
type Handler struct {
	gate      *session.Gate
	codec     *token.Codec
	ids       identity.Verifier
	recorder  *attendance.Recorder
	wl        *whitelist.Store
	codes     *verification.Service
	docs      docstore.Store
	log       *zap.Logger
	twoFactor bool
	loc       *time.Location
	pendTTL   time.Duration
	now       func() time.Time
}

// New wires a handler.
func New(gate *session.Gate, codec *token.Codec, ids identity.Verifier, recorder *attendance.Recorder,
	wl *whitelist.Store, codes *verification.Service, docs docstore.Store,
	loc *time.Location, twoFactor bool, pendTTL time.Duration, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if pendTTL <= 0 {
		pendTTL = 10 * time.Minute
	}
	return &Handler{
		gate: gate, codec: codec, ids: ids, recorder: recorder,
		wl: wl, codes: codes, docs: docs,
		loc: loc, twoFactor: twoFactor, pendTTL: pendTTL,
		log: log, now: time.Now,
	}
}

// Register mounts the routes. Session claims are attached by the gate
// middleware; role guards sit on the privileged groups.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1", h.gate.Middleware())

	v1.POST("/login", h.Login)
	v1.POST("/login/complete", h.LoginComplete)
	v1.POST("/logout", h.Logout)

	v1.POST("/whitelist/check", h.CheckWhitelist)
	v1.POST("/verification/issue", h.IssueCode)
	v1.POST("/verification/verify", h.VerifyCode)

	staff := v1.Group("", h.gate.RequireRole(token.RoleAdmin, token.RoleModerator))
	staff.POST("/attendance", h.RecordAttendance)
	staff.GET("/attendance/:key", h.ListAttendance)
	staff.GET("/attendance/:key/summary", h.AttendanceSummary)

	admin := v1.Group("", h.gate.RequireRole(token.RoleAdmin))
	admin.PUT("/whitelist", h.UpsertWhitelist)
	admin.DELETE("/whitelist", h.DeleteWhitelist)
	admin.POST("/whitelist/rename", h.RenameWhitelist)
}

// ---------- Sessions ----------

type loginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// Login verifies an identity token with the provider and either issues
// the session cookie directly or, with 2FA on, parks the identity and
// sends a verification code.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.ids.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.log.Error("identity verification failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "login unavailable"})
		return
	}

	if h.twoFactor {
		// No email means no second factor. Fail closed rather than
		// quietly downgrading to a single-factor login.
		if id.Email == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "account has no email for verification"})
			return
		}
		pend := docstore.Doc{
			"display_name": id.DisplayName,
			"email":        id.Email,
			"role":         string(id.Role),
			"created_at":   h.now().UTC().Format(time.RFC3339),
		}
		if err := h.docs.Set(c.Request.Context(), PendingLoginCollection, id.SubjectID, pend); err != nil {
			h.log.Error("pending login store failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "login unavailable"})
			return
		}
		if err := h.codes.Issue(c.Request.Context(), id.SubjectID, id.Email); err != nil {
			h.respondCodeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"pending": true, "subject_id": id.SubjectID})
		return
	}

	h.issueSession(c, id.SubjectID, id.Role, id.DisplayName)
}

type loginCompleteRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// LoginComplete finishes a 2FA login: verify the code, consume it, then
// redeem the parked identity for a session cookie.
func (h *Handler) LoginComplete(c *gin.Context) {
	var req loginCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.codes.Verify(c.Request.Context(), req.SubjectID, req.Code)
	if err != nil {
		h.log.Error("code verification failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "login unavailable"})
		return
	}
	if !res.Success {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code", "reason": res.Reason})
		return
	}
	if err := h.codes.Consume(c.Request.Context(), req.SubjectID); err != nil {
		h.log.Error("code consume failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "login unavailable"})
		return
	}

	pend, err := h.docs.Get(c.Request.Context(), PendingLoginCollection, req.SubjectID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no pending login"})
		return
	}
	_ = h.docs.Delete(c.Request.Context(), PendingLoginCollection, req.SubjectID)

	created, perr := time.Parse(time.RFC3339, pend["created_at"])
	if perr != nil || h.now().Sub(created) > h.pendTTL {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login expired"})
		return
	}

	role := token.Role(pend["role"])
	if !role.IsValid() {
		role = token.RoleUser
	}
	h.issueSession(c, req.SubjectID, role, pend["display_name"])
}

// Logout clears the session cookie and the legacy role cookie. Tokens
// already issued stay valid until they expire.
func (h *Handler) Logout(c *gin.Context) {
	h.gate.ClearCookies(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) issueSession(c *gin.Context, subjectID string, role token.Role, displayName string) {
	signed, err := h.codec.Issue(subjectID, role)
	if err != nil {
		h.log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	h.gate.IssueCookie(c, signed)
	c.JSON(http.StatusOK, gin.H{
		"token":        signed,
		"subject_id":   subjectID,
		"role":         role,
		"display_name": displayName,
	})
}

// ---------- Attendance ----------

type recordRequest struct {
	IdentityID string `json:"identity_id" binding:"required"`
	Name       string `json:"name"`
	YearLevel  string `json:"year_level"`
	Section    string `json:"section"`
	Date       string `json:"date"` // 2006-01-02, defaults to today
}

// RecordAttendance appends one check-in to the day ledger.
func (h *Handler) RecordAttendance(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := attendance.Input{
		IdentityID: req.IdentityID,
		Name:       req.Name,
		YearLevel:  req.YearLevel,
		Section:    req.Section,
	}
	if req.Date != "" {
		date, err := time.ParseInLocation("2006-01-02", req.Date, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		in.Date = date
	}

	rec, err := h.recorder.Record(c.Request.Context(), session.Claims(c), in)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		case errors.Is(err, session.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		case errors.Is(err, whitelist.ErrNotFound):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "identity not whitelisted"})
		default:
			h.log.Error("attendance record failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "attendance could not be recorded"})
		}
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// ListAttendance returns the records of one partition; an absent
// partition is an empty day.
func (h *Handler) ListAttendance(c *gin.Context) {
	records, err := h.recorder.List(c.Request.Context(), session.Claims(c), c.Param("key"))
	if err != nil {
		h.log.Error("attendance read failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "attendance unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// AttendanceSummary returns the advisory per-day counter.
func (h *Handler) AttendanceSummary(c *gin.Context) {
	agg, err := h.recorder.Summary(c.Request.Context(), session.Claims(c), c.Param("key"))
	if err != nil {
		h.log.Error("attendance summary failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "summary unavailable"})
		return
	}
	c.JSON(http.StatusOK, agg)
}

// ---------- Whitelist ----------

type checkWhitelistRequest struct {
	IdentityID string `json:"identity_id" binding:"required"`
	FullName   string `json:"full_name"`
}

// CheckWhitelist reports whether an identity id is authorized and
// returns the authoritative display name.
func (h *Handler) CheckWhitelist(c *gin.Context) {
	var req checkWhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, ok, err := h.wl.Check(c.Request.Context(), req.IdentityID)
	if err != nil {
		h.log.Error("whitelist check failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "whitelist unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authorized": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorized": true, "display_name": entry.DisplayName})
}

type upsertWhitelistRequest struct {
	Entries []struct {
		IdentityID  string `json:"identity_id" binding:"required"`
		DisplayName string `json:"display_name" binding:"required"`
	} `json:"entries" binding:"required"`
}

// UpsertWhitelist bulk-imports entries.
func (h *Handler) UpsertWhitelist(c *gin.Context) {
	var req upsertWhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries := make([]whitelist.Entry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = whitelist.Entry{IdentityID: e.IdentityID, DisplayName: e.DisplayName}
	}
	if err := h.wl.UpsertMany(c.Request.Context(), entries); err != nil {
		h.log.Error("whitelist upsert failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "whitelist unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(entries)})
}

type deleteWhitelistRequest struct {
	IdentityIDs []string `json:"identity_ids" binding:"required"`
}

// DeleteWhitelist removes entries.
func (h *Handler) DeleteWhitelist(c *gin.Context) {
	var req deleteWhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.wl.DeleteMany(c.Request.Context(), req.IdentityIDs); err != nil {
		h.log.Error("whitelist delete failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "whitelist unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(req.IdentityIDs)})
}

type renameWhitelistRequest struct {
	OldID       string `json:"old_id" binding:"required"`
	NewID       string `json:"new_id" binding:"required"`
	DisplayName string `json:"display_name"`
}

// RenameWhitelist moves an entry to a new identity id.
func (h *Handler) RenameWhitelist(c *gin.Context) {
	var req renameWhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.wl.Rename(c.Request.Context(), req.OldID, req.NewID, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, whitelist.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "identity id already exists"})
		case errors.Is(err, whitelist.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		default:
			h.log.Error("whitelist rename failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "whitelist unavailable"})
		}
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ---------- Verification codes ----------

type issueCodeRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
}

// IssueCode generates and mails a one-time code.
func (h *Handler) IssueCode(c *gin.Context) {
	var req issueCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.codes.Issue(c.Request.Context(), req.SubjectID, req.Email); err != nil {
		h.respondCodeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type verifyCodeRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// VerifyCode checks a code; the document survives success so callers can
// verify first and consume after applying their effect.
func (h *Handler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.codes.Verify(c.Request.Context(), req.SubjectID, req.Code)
	if err != nil {
		h.log.Error("code verification failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "verification unavailable"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) respondCodeError(c *gin.Context, err error) {
	if errors.Is(err, verification.ErrRateLimited) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "code requested too recently"})
		return
	}
	h.log.Error("code issuance failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "code could not be sent"})
}
