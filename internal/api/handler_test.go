package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"SendFlow/internal/audit"
	"SendFlow/internal/engine"
	"SendFlow/internal/models"
	"SendFlow/internal/notifier"
	"SendFlow/internal/registry"
	"SendFlow/internal/store"
	"SendFlow/internal/templates"
	"SendFlow/internal/transport"
)

type stubMailer struct {
	mu   sync.Mutex
	sent int
}

func (m *stubMailer) Send(_ *gomail.Message) error {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
	return nil
}

func (m *stubMailer) Close() error { return nil }

type stubDialer struct {
	mailer *stubMailer
}

func (d *stubDialer) Connect(_, _ string) (transport.Mailer, error) {
	return d.mailer, nil
}

type fixture struct {
	router *gin.Engine
	mem    *store.Memory
	eng    *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	mem := store.NewMemory()
	recorder := &audit.Recorder{Store: mem, Log: logger}

	eng := &engine.Engine{
		Registry:  registry.New(),
		Dialer:    &stubDialer{mailer: &stubMailer{}},
		Recorder:  recorder,
		Store:     mem,
		Templates: &templates.Source{Store: mem, DefaultSender: "Interview Opportunity"},
		Log:       logger,
	}
	eng.Notifier = notifier.New(time.Minute, eng.ProgressSnapshot, logger)

	h := &Handler{
		Engine:    eng,
		Notifier:  eng.Notifier,
		Recorder:  recorder,
		Audits:    mem,
		Templates: mem,
		Log:       logger,
		MaxRows:   100,
	}

	router := gin.New()
	h.Register(router)
	return &fixture{router: router, mem: mem, eng: eng}
}

func (f *fixture) do(method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) doJSON(method, path string, payload any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(payload)
	return f.do(method, path, bytes.NewBuffer(data), "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// waitForJob blocks until no job is registered for the identity.
func (f *fixture) waitForJob(t *testing.T, identity string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.eng.Registry.Get(identity); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
}

func TestSendEmailsMissingCredentials(t *testing.T) {
	f := newFixture(t)

	form := "userType=senior&data=" + `[{"name":"A","company":"B","email":"a@b.c","role":"Dev"}]`
	w := f.do(http.MethodPost, "/api/send-emails", bytes.NewBufferString(form), "application/x-www-form-urlencoded")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
}

func TestSendEmailsNoData(t *testing.T) {
	f := newFixture(t)

	form := "email=me@example.com&password=secret&userType=senior"
	w := f.do(http.MethodPost, "/api/send-emails", bytes.NewBufferString(form), "application/x-www-form-urlencoded")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["message"], "no manual data")
}

func TestSendEmailsManualRows(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.SaveUserTemplate(context.Background(), "senior", "Hello {{name}}"))

	rows := `[{"name":"Ada","company":"Acme","email":"ada@acme.example","role":"Engineer"}]`
	form := "email=me@example.com&password=secret&userType=senior&data=" + rows
	w := f.do(http.MethodPost, "/api/send-emails", bytes.NewBufferString(form), "application/x-www-form-urlencoded")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["jobId"])
	assert.Equal(t, float64(1), body["total"])

	f.waitForJob(t, "me@example.com")

	recs, err := f.mem.Find(context.Background(), store.AuditFilter{}, store.Unsorted)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.AuditSuccess, recs[0].Status)
}

func TestSendEmailsCSVUpload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.SaveUserTemplate(context.Background(), "senior", "Hello {{name}}"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("email", "me@example.com"))
	require.NoError(t, mw.WriteField("password", "secret"))
	require.NoError(t, mw.WriteField("userType", "senior"))
	require.NoError(t, mw.WriteField("mode", "csv"))
	fw, err := mw.CreateFormFile("file", "recipients.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("name,company,email,role\nAda,Acme,ada@acme.example,Engineer\nGrace,Initech,grace@initech.example,Manager\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := f.do(http.MethodPost, "/api/send-emails", &buf, mw.FormDataContentType())

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode(t, w)["total"])
	f.waitForJob(t, "me@example.com")
}

func TestSendEmailsDuplicateJobConflict(t *testing.T) {
	f := newFixture(t)

	job := models.NewJob("job-1", "me@example.com", "senior", models.KindInitial, nil)
	require.NoError(t, f.eng.Registry.Admit(job))

	rows := `[{"name":"Ada","company":"Acme","email":"ada@acme.example","role":"Engineer"}]`
	form := "email=me@example.com&password=secret&userType=senior&data=" + rows
	w := f.do(http.MethodPost, "/api/send-emails", bytes.NewBufferString(form), "application/x-www-form-urlencoded")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSendEmailsBulkFollowUpRequiresDates(t *testing.T) {
	f := newFixture(t)

	form := "email=me@example.com&password=secret&userType=senior&kind=bulk-followup"
	w := f.do(http.MethodPost, "/api/send-emails", bytes.NewBufferString(form), "application/x-www-form-urlencoded")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["message"], "startDate")
}

func TestListAuditsNestsMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mem.Insert(ctx, &models.EmailAudit{
		ID:          "rec-1",
		JobID:       "job-1",
		UserProfile: "senior",
		Name:        "Ada",
		Email:       "ada@acme.example",
		Status:      models.AuditSuccess,
		MessageID:   "msg-1",
		ThreadID:    "thr-1",
		EmailType:   models.EmailTypeMain,
	})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/api/email-audit", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	records, ok := body["records"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)

	rec := records[0].(map[string]any)
	meta, ok := rec["emailMetadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "msg-1", meta["messageId"])
	assert.Equal(t, "thr-1", meta["threadId"])
	assert.Equal(t, false, meta["isFollowUp"])
}

func TestDeleteAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mem.Insert(ctx, &models.EmailAudit{ID: "rec-1", Email: "a@b.c", Status: models.AuditSuccess})
	require.NoError(t, err)

	w := f.do(http.MethodDelete, "/api/email-audit/rec-1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodDelete, "/api/email-audit/rec-1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggleReplyReceived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mem.Insert(ctx, &models.EmailAudit{ID: "rec-1", Email: "a@b.c", Status: models.AuditSuccess})
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/api/toggle-reply-received/rec-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["replyReceived"])

	w = f.do(http.MethodPost, "/api/toggle-reply-received/rec-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["replyReceived"])

	w = f.do(http.MethodPost, "/api/toggle-reply-received/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkMarkReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now()
	for _, id := range []string{"rec-1", "rec-2"} {
		_, err := f.mem.Insert(ctx, &models.EmailAudit{
			ID:          id,
			UserProfile: "senior",
			Email:       id + "@acme.example",
			Status:      models.AuditSuccess,
			CreatedAt:   now,
		})
		require.NoError(t, err)
	}

	w := f.doJSON(http.MethodPost, "/api/bulk-mark-reply", map[string]string{
		"startDate":   now.Format("2006-01-02"),
		"endDate":     now.Format("2006-01-02"),
		"userProfile": "senior",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode(t, w)["updatedCount"])
}

func TestBulkMarkReplyRequiresDates(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(http.MethodPost, "/api/bulk-mark-reply", map[string]string{"userProfile": "senior"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplateRoundTrip(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/get-template/senior", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.doJSON(http.MethodPost, "/api/update-template", map[string]string{
		"userType": "Senior",
		"template": "Hello {{name}}",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/get-template/senior", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello {{name}}", decode(t, w)["template"])
}

func TestUpdateTemplateValidation(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(http.MethodPost, "/api/update-template", map[string]string{"userType": "senior"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFollowUpTemplateMissingIsNull(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/get-followup-template/senior", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["followUpTemplate"])

	w = f.doJSON(http.MethodPost, "/api/update-followup-template", map[string]string{
		"userType": "senior",
		"template": "Following up, {{name}}",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/get-followup-template/senior", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Following up, {{name}}", decode(t, w)["followUpTemplate"])
}

func TestFollowUpTemplateAlias(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/followup-template/senior", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["template"])

	require.NoError(t, f.mem.SaveFollowUpTemplate(context.Background(), "senior", "Following up"))

	w = f.do(http.MethodGet, "/api/followup-template/senior", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Following up", decode(t, w)["template"])
}

func TestResumeLinkRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tmpl := `Hi {{name}}, my resume: <a href="https://drive.google.com/file/d/OLD_id-123/view">resume</a>.`
	require.NoError(t, f.mem.SaveUserTemplate(ctx, "senior", tmpl))

	w := f.do(http.MethodGet, "/api/get-resume-link/senior", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "@https://drive.google.com/file/d/OLD_id-123/view", decode(t, w)["resumeLink"])

	w = f.doJSON(http.MethodPost, "/api/update-resume-link", map[string]string{
		"userType":   "Senior",
		"resumeLink": "@https://drive.google.com/file/d/NEW_id-456/view",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["template"], `href="https://drive.google.com/file/d/NEW_id-456/view"`)

	w = f.do(http.MethodGet, "/api/get-resume-link/senior", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "@https://drive.google.com/file/d/NEW_id-456/view", decode(t, w)["resumeLink"])
}

func TestResumeLinkBareToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mem.SaveUserTemplate(ctx, "senior",
		"Resume: @https://drive.google.com/file/d/OLD_id-123/view thanks"))

	w := f.doJSON(http.MethodPost, "/api/update-resume-link", map[string]string{
		"userType":   "senior",
		"resumeLink": "@https://drive.google.com/file/d/NEW_id-456/view",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["template"], "@https://drive.google.com/file/d/NEW_id-456/view")

	body, err := f.mem.UserTemplate(ctx, "senior")
	require.NoError(t, err)
	assert.NotContains(t, body, "OLD_id-123")
}

func TestResumeLinkMissingTemplate(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/get-resume-link/senior", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.doJSON(http.MethodPost, "/api/update-resume-link", map[string]string{
		"userType":   "senior",
		"resumeLink": "@https://drive.google.com/file/d/NEW_id-456/view",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.doJSON(http.MethodPost, "/api/update-resume-link", map[string]string{"userType": "senior"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mem.SaveProfile(ctx, models.UserProfile{UserID: "senior", Name: "Jordan Lee"}))

	w := f.do(http.MethodGet, "/api/user-profile", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	profiles, ok := decode(t, w)["userProfiles"].([]any)
	require.True(t, ok)
	require.Len(t, profiles, 1)
}

func TestStreamProgressRequiresEmail(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/send-emails-sse", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamProgressSendsConnectedFrame(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/send-emails-sse?email=me@example.com", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.router.ServeHTTP(w, req)
		close(done)
	}()

	// The notifier's writer flushes the connected frame right after
	// subscribing; give it a moment before cutting the stream.
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `data: {"type":"connected"`)
}
