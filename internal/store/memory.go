package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"SendFlow/internal/models"
)

// Memory is an in-process implementation of AuditStore and TemplateStore.
// It backs the tests and is useful for running the server without Postgres.
type Memory struct {
	mu        sync.RWMutex
	audits    map[string]*models.EmailAudit
	order     []string
	templates map[string]string
	followUps map[string]string
	profiles  map[string]models.UserProfile
}

func NewMemory() *Memory {
	return &Memory{
		audits:    make(map[string]*models.EmailAudit),
		templates: make(map[string]string),
		followUps: make(map[string]string),
		profiles:  make(map[string]models.UserProfile),
	}
}

func (s *Memory) Insert(_ context.Context, rec *models.EmailAudit) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	cp := *rec
	s.audits[rec.ID] = &cp
	s.order = append(s.order, rec.ID)
	return rec.ID, nil
}

func applyPatch(rec *models.EmailAudit, patch AuditPatch) {
	if patch.ReplyReceived != nil {
		rec.ReplyReceived = *patch.ReplyReceived
	}
	if patch.IncrementFollowUps {
		rec.FollowUpCount++
	}
	if patch.LastFollowUpDate != nil {
		t := *patch.LastFollowUpDate
		rec.LastFollowUpDate = &t
	}
	rec.UpdatedAt = time.Now().UTC()
}

func (s *Memory) Update(_ context.Context, id string, patch AuditPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.audits[id]
	if !ok {
		return ErrNotFound
	}
	applyPatch(rec, patch)
	return nil
}

func (s *Memory) UpdateMany(_ context.Context, f AuditFilter, patch AuditPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range s.order {
		rec := s.audits[id]
		if matches(rec, f) {
			applyPatch(rec, patch)
			n++
		}
	}
	return n, nil
}

func matches(rec *models.EmailAudit, f AuditFilter) bool {
	if f.ID != "" && rec.ID != f.ID {
		return false
	}
	if f.JobID != "" && rec.JobID != f.JobID {
		return false
	}
	if f.UserProfile != "" && rec.UserProfile != f.UserProfile {
		return false
	}
	if f.Email != "" && rec.Email != f.Email {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.ReplyReceived != nil && rec.ReplyReceived != *f.ReplyReceived {
		return false
	}
	if f.IsFollowUp != nil && rec.IsFollowUp != *f.IsFollowUp {
		return false
	}
	if f.ExcludeEmailType != "" && rec.EmailType == f.ExcludeEmailType {
		return false
	}
	if f.RequireThreadIDs && (rec.MessageID == "" || rec.ThreadID == "") {
		return false
	}
	if f.CreatedFrom != nil && rec.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && rec.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

func (s *Memory) Find(_ context.Context, f AuditFilter, order Sort) ([]models.EmailAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []models.EmailAudit
	for _, id := range s.order {
		if matches(s.audits[id], f) {
			recs = append(recs, *s.audits[id])
		}
	}
	switch order {
	case CreatedAsc:
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	case CreatedDesc:
		sort.SliceStable(recs, func(i, j int) bool { return recs[j].CreatedAt.Before(recs[i].CreatedAt) })
	}
	return recs, nil
}

func (s *Memory) FindOne(ctx context.Context, f AuditFilter, order Sort) (*models.EmailAudit, error) {
	recs, err := s.Find(ctx, f, order)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

func (s *Memory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.audits[id]; !ok {
		return ErrNotFound
	}
	delete(s.audits, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Memory) UserTemplate(_ context.Context, profile string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.templates[profile]
	if !ok {
		return "", ErrNotFound
	}
	return body, nil
}

func (s *Memory) SaveUserTemplate(_ context.Context, profile, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[profile] = body
	return nil
}

func (s *Memory) FollowUpTemplate(_ context.Context, profile string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.followUps[profile]
	if !ok {
		return "", ErrNotFound
	}
	return body, nil
}

func (s *Memory) SaveFollowUpTemplate(_ context.Context, profile, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUps[profile] = body
	return nil
}

func (s *Memory) Profiles(_ context.Context) ([]models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	profiles := make([]models.UserProfile, 0, len(ids))
	for _, id := range ids {
		profiles = append(profiles, s.profiles[id])
	}
	return profiles, nil
}

func (s *Memory) Profile(_ context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *Memory) SaveProfile(_ context.Context, p models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}
