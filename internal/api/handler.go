// Package api is the HTTP surface: job intake, the SSE progress stream,
// and the audit/template administration routes. All job semantics live in
// the engine; handlers only translate between HTTP and the core types.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"SendFlow/internal/audit"
	"SendFlow/internal/csvparser"
	"SendFlow/internal/engine"
	"SendFlow/internal/models"
	"SendFlow/internal/notifier"
	"SendFlow/internal/registry"
	"SendFlow/internal/store"
)

type Handler struct {
	Engine    *engine.Engine
	Notifier  *notifier.Notifier
	Recorder  *audit.Recorder
	Audits    store.AuditStore
	Templates store.TemplateStore
	Log       *zap.Logger
	MaxRows   int
}

func (h *Handler) Register(r *gin.Engine) {
	g := r.Group("/api")
	g.POST("/send-emails", h.SendEmails)
	g.GET("/send-emails-sse", h.StreamProgress)
	g.GET("/email-audit", h.ListAudits)
	g.DELETE("/email-audit/:id", h.DeleteAudit)
	g.POST("/toggle-reply-received/:recordId", h.ToggleReplyReceived)
	g.POST("/bulk-mark-reply", h.BulkMarkReply)
	g.GET("/get-template/:userType", h.GetTemplate)
	g.POST("/update-template", h.UpdateTemplate)
	g.GET("/get-followup-template/:userType", h.GetFollowUpTemplate)
	g.POST("/update-followup-template", h.UpdateFollowUpTemplate)
	g.GET("/followup-template/:userType", h.FollowUpTemplateAlias)
	g.POST("/update-resume-link", h.UpdateResumeLink)
	g.GET("/get-resume-link/:userType", h.GetResumeLink)
	g.GET("/user-profile", h.ListProfiles)
}

// SendEmails validates the submission and starts the job in the
// background; the response carries only the job id and row count. Progress
// flows through the SSE stream.
func (h *Handler) SendEmails(c *gin.Context) {
	req := engine.SubmitRequest{
		Identity:       c.PostForm("email"),
		Secret:         c.PostForm("password"),
		UserType:       c.PostForm("userType"),
		Kind:           models.JobKind(c.PostForm("kind")),
		CustomTemplate: c.PostForm("customEmailBody"),
		Subject:        c.PostForm("subject"),
	}

	if req.Kind == models.KindBulkFollowUp {
		from, err := parseDate(c.PostForm("startDate"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid startDate")
			return
		}
		to, err := parseDate(c.PostForm("endDate"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid endDate")
			return
		}
		req.RangeFrom, req.RangeTo = from, to
	} else {
		rows, err := h.readRows(c)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		req.Rows = rows
	}

	job, err := h.Engine.Submit(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, registry.ErrDuplicateJob):
			status = http.StatusConflict
		case errors.Is(err, engine.ErrMissingCredentials),
			errors.Is(err, engine.ErrEmptyInput),
			errors.Is(err, engine.ErrMissingRange),
			errors.Is(err, engine.ErrAlreadyFollowUp):
			status = http.StatusBadRequest
		default:
			h.Log.Error("job submission failed", zap.Error(err))
		}
		fail(c, status, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Email sending process started",
		"jobId":   job.ID,
		"total":   job.Total(),
	})
}

// readRows extracts recipient rows from either the uploaded CSV or the
// manual JSON payload, depending on mode.
func (h *Handler) readRows(c *gin.Context) ([]map[string]string, error) {
	if c.PostForm("mode") == "csv" {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, errors.New("no file uploaded")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening upload: %w", err)
		}
		defer f.Close()
		return csvparser.ParseRows(f, h.MaxRows)
	}

	data := c.PostForm("data")
	if data == "" {
		return nil, errors.New("no manual data provided")
	}
	var rows []map[string]string
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, fmt.Errorf("invalid manual data: %w", err)
	}
	return rows, nil
}

// StreamProgress holds the response open and relays the identity's
// progress events as SSE frames until the client goes away or the
// subscription is replaced.
func (h *Handler) StreamProgress(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		fail(c, http.StatusBadRequest, "Email is required")
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	sink := &sseSink{w: c.Writer}
	sub := h.Notifier.Subscribe(email, sink)

	select {
	case <-c.Request.Context().Done():
		h.Notifier.Drop(email, sub)
	case <-sub.Done():
	}
}

// sseSink frames events as data: {json}\n\n on a live response. Sends come
// from the notifier's writer goroutine; Close can race an in-flight send,
// so both hold the mutex.
type sseSink struct {
	mu     sync.Mutex
	w      gin.ResponseWriter
	closed bool
}

func (s *sseSink) Send(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("subscriber connection closed")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

func (s *sseSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
