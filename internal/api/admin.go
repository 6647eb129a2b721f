package api

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"SendFlow/internal/models"
	"SendFlow/internal/store"
)

type auditMetadata struct {
	MessageID         string `json:"messageId"`
	ThreadID          string `json:"threadId"`
	OriginalMessageID string `json:"originalMessageId,omitempty"`
	IsFollowUp        bool   `json:"isFollowUp"`
}

type auditRecord struct {
	models.EmailAudit
	EmailMetadata auditMetadata `json:"emailMetadata"`
}

// ListAudits returns every audit record, newest first.
func (h *Handler) ListAudits(c *gin.Context) {
	recs, err := h.Audits.Find(c.Request.Context(), store.AuditFilter{}, store.CreatedDesc)
	if err != nil {
		h.Log.Error("failed to list audit records", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error processing request")
		return
	}

	records := make([]auditRecord, 0, len(recs))
	for _, rec := range recs {
		records = append(records, auditRecord{
			EmailAudit: rec,
			EmailMetadata: auditMetadata{
				MessageID:         rec.MessageID,
				ThreadID:          rec.ThreadID,
				OriginalMessageID: rec.OriginalMessageID,
				IsFollowUp:        rec.IsFollowUp,
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
}

func (h *Handler) DeleteAudit(c *gin.Context) {
	id := c.Param("id")
	if err := h.Audits.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Record not found")
			return
		}
		h.Log.Error("failed to delete audit record", zap.String("id", id), zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error while deleting record")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Record deleted successfully"})
}

func (h *Handler) ToggleReplyReceived(c *gin.Context) {
	id := c.Param("recordId")
	replied, err := h.Recorder.ToggleReplied(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Record not found")
			return
		}
		h.Log.Error("failed to toggle reply status", zap.String("id", id), zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error updating reply received status")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Reply received status updated successfully",
		"replyReceived": replied,
	})
}

func (h *Handler) BulkMarkReply(c *gin.Context) {
	var req struct {
		StartDate   string `json:"startDate"`
		EndDate     string `json:"endDate"`
		UserProfile string `json:"userProfile"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Start date and end date are required")
		return
	}

	from, err := parseDate(req.StartDate)
	if err != nil {
		fail(c, http.StatusBadRequest, "Start date and end date are required")
		return
	}
	to, err := parseDate(req.EndDate)
	if err != nil {
		fail(c, http.StatusBadRequest, "Start date and end date are required")
		return
	}

	n, err := h.Recorder.BulkMarkReplied(c.Request.Context(), normalizeProfile(req.UserProfile), from, to)
	if err != nil {
		h.Log.Error("bulk mark reply failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error while marking replies")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Successfully marked emails as replied",
		"updatedCount": n,
	})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	userType := normalizeProfile(c.Param("userType"))
	body, err := h.Templates.UserTemplate(c.Request.Context(), userType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "No template found for user type: "+userType)
			return
		}
		h.Log.Error("failed to fetch template", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error fetching template")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": body})
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	var req struct {
		UserType string `json:"userType"`
		Template string `json:"template"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserType == "" || req.Template == "" {
		fail(c, http.StatusBadRequest, "User type and template are required")
		return
	}

	if err := h.Templates.SaveUserTemplate(c.Request.Context(), normalizeProfile(req.UserType), req.Template); err != nil {
		h.Log.Error("failed to update template", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error updating template")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Template updated successfully", "template": req.Template})
}

func (h *Handler) GetFollowUpTemplate(c *gin.Context) {
	userType := normalizeProfile(c.Param("userType"))
	body, err := h.Templates.FollowUpTemplate(c.Request.Context(), userType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A missing follow-up template is not an error; clients fall
			// back to their own default.
			c.JSON(http.StatusOK, gin.H{"success": true, "followUpTemplate": nil})
			return
		}
		h.Log.Error("failed to fetch follow-up template", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error fetching follow-up template")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "followUpTemplate": body})
}

func (h *Handler) UpdateFollowUpTemplate(c *gin.Context) {
	var req struct {
		UserType string `json:"userType"`
		Template string `json:"template"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserType == "" || req.Template == "" {
		fail(c, http.StatusBadRequest, "User type and template are required")
		return
	}

	if err := h.Templates.SaveFollowUpTemplate(c.Request.Context(), normalizeProfile(req.UserType), req.Template); err != nil {
		h.Log.Error("failed to update follow-up template", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error updating follow-up template")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Follow-up template updated successfully"})
}

// Resume links live inside the stored template body as Google Drive URLs;
// the link operations rewrite the template text rather than a separate
// field, as sent templates must carry the link inline.
var (
	driveHrefRe   = regexp.MustCompile(`(?i)href=["']https://drive\.google\.com/file/d/[a-zA-Z0-9_-]+/view["']`)
	driveBareRe   = regexp.MustCompile(`@https://drive\.google\.com/[^\s"'<>]+`)
	driveFileIDRe = regexp.MustCompile(`(?i)file/d/([a-zA-Z0-9_-]+)/view`)
)

func (h *Handler) UpdateResumeLink(c *gin.Context) {
	var req struct {
		UserType   string `json:"userType"`
		ResumeLink string `json:"resumeLink"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserType == "" || req.ResumeLink == "" {
		fail(c, http.StatusBadRequest, "User type and resume link are required")
		return
	}

	userType := normalizeProfile(req.UserType)
	body, err := h.Templates.UserTemplate(c.Request.Context(), userType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "No template found for user type: "+userType)
			return
		}
		h.Log.Error("failed to fetch template for resume link update", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error updating resume link")
		return
	}

	var updated string
	if driveHrefRe.MatchString(body) {
		link := strings.TrimPrefix(req.ResumeLink, "@")
		updated = driveHrefRe.ReplaceAllLiteralString(body, `href="`+link+`"`)
	} else {
		updated = driveBareRe.ReplaceAllLiteralString(body, req.ResumeLink)
	}

	if err := h.Templates.SaveUserTemplate(c.Request.Context(), userType, updated); err != nil {
		h.Log.Error("failed to save template with new resume link", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error updating resume link")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Resume link updated successfully",
		"template": updated,
	})
}

func (h *Handler) GetResumeLink(c *gin.Context) {
	userType := normalizeProfile(c.Param("userType"))
	body, err := h.Templates.UserTemplate(c.Request.Context(), userType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "No template found for user type: "+userType)
			return
		}
		h.Log.Error("failed to fetch template for resume link", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error fetching resume link")
		return
	}

	resumeLink := ""
	if m := driveFileIDRe.FindStringSubmatch(body); m != nil {
		resumeLink = "@https://drive.google.com/file/d/" + m[1] + "/view"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resumeLink": resumeLink})
}

// FollowUpTemplateAlias serves the older route spelling some clients still
// call; it answers with a "template" key and null when nothing is stored.
func (h *Handler) FollowUpTemplateAlias(c *gin.Context) {
	userType := normalizeProfile(c.Param("userType"))
	body, err := h.Templates.FollowUpTemplate(c.Request.Context(), userType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"success": true, "template": nil})
			return
		}
		h.Log.Error("failed to fetch follow-up template", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error fetching follow-up template")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": body})
}

func (h *Handler) ListProfiles(c *gin.Context) {
	profiles, err := h.Templates.Profiles(c.Request.Context())
	if err != nil {
		h.Log.Error("failed to list user profiles", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to fetch user profiles")
		return
	}
	c.JSON(http.StatusOK, gin.H{"userProfiles": profiles})
}

func normalizeProfile(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
