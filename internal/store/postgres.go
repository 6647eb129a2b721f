package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"SendFlow/internal/models"
)

// Postgres implements AuditStore and TemplateStore on a pgx pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(conn string) (*Postgres, error) {
	pool, err := pgxpool.New(context.Background(), conn)
	if err != nil {
		return nil, err
	}

	s := &Postgres{Pool: pool}
	if err := s.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) Close() {
	s.Pool.Close()
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_audits (
			id                  TEXT PRIMARY KEY,
			job_id              TEXT NOT NULL,
			user_profile        TEXT NOT NULL,
			name                TEXT NOT NULL,
			company             TEXT NOT NULL,
			email               TEXT NOT NULL,
			role                TEXT NOT NULL,
			link                TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL,
			error_details       TEXT NOT NULL DEFAULT '',
			message_id          TEXT NOT NULL,
			thread_id           TEXT NOT NULL,
			is_follow_up        BOOLEAN NOT NULL DEFAULT FALSE,
			original_message_id TEXT NOT NULL DEFAULT '',
			email_type          TEXT NOT NULL,
			reply_received      BOOLEAN NOT NULL DEFAULT FALSE,
			follow_up_count     INT NOT NULL DEFAULT 0,
			last_follow_up_date TIMESTAMPTZ,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS user_templates (
			user_profile  TEXT PRIMARY KEY,
			user_template TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS followup_templates (
			user_profile       TEXT PRIMARY KEY,
			follow_up_template TEXT NOT NULL,
			last_updated       TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id            TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			follow_up_template TEXT NOT NULL DEFAULT ''
		);`)
	return err
}

const auditColumns = `id, job_id, user_profile, name, company, email, role, link,
	status, error_details, message_id, thread_id, is_follow_up,
	original_message_id, email_type, reply_received, follow_up_count,
	last_follow_up_date, created_at, updated_at`

func (s *Postgres) Insert(ctx context.Context, rec *models.EmailAudit) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.Pool.Exec(ctx,
		`INSERT INTO email_audits (`+auditColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		rec.ID, rec.JobID, rec.UserProfile,
		rec.Name, rec.Company, rec.Email, rec.Role, rec.Link,
		rec.Status, rec.ErrorDetails,
		rec.MessageID, rec.ThreadID, rec.IsFollowUp,
		rec.OriginalMessageID, rec.EmailType,
		rec.ReplyReceived, rec.FollowUpCount, rec.LastFollowUpDate,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func patchClauses(patch AuditPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.ReplyReceived != nil {
		sets = append(sets, "reply_received="+arg(*patch.ReplyReceived))
	}
	if patch.IncrementFollowUps {
		sets = append(sets, "follow_up_count=follow_up_count+1")
	}
	if patch.LastFollowUpDate != nil {
		sets = append(sets, "last_follow_up_date="+arg(*patch.LastFollowUpDate))
	}
	sets = append(sets, "updated_at="+arg(time.Now().UTC()))
	return sets, args
}

func (s *Postgres) Update(ctx context.Context, id string, patch AuditPatch) error {
	sets, args := patchClauses(patch)
	args = append(args, id)

	tag, err := s.Pool.Exec(ctx,
		fmt.Sprintf("UPDATE email_audits SET %s WHERE id=$%d", strings.Join(sets, ", "), len(args)),
		args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UpdateMany(ctx context.Context, f AuditFilter, patch AuditPatch) (int64, error) {
	sets, args := patchClauses(patch)
	where, args := filterClauses(f, args)

	query := fmt.Sprintf("UPDATE email_audits SET %s", strings.Join(sets, ", "))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	tag, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func filterClauses(f AuditFilter, args []any) ([]string, []any) {
	var where []string
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ID != "" {
		where = append(where, "id="+arg(f.ID))
	}
	if f.JobID != "" {
		where = append(where, "job_id="+arg(f.JobID))
	}
	if f.UserProfile != "" {
		where = append(where, "user_profile="+arg(f.UserProfile))
	}
	if f.Email != "" {
		where = append(where, "email="+arg(f.Email))
	}
	if f.Status != "" {
		where = append(where, "status="+arg(string(f.Status)))
	}
	if f.ReplyReceived != nil {
		where = append(where, "reply_received="+arg(*f.ReplyReceived))
	}
	if f.IsFollowUp != nil {
		where = append(where, "is_follow_up="+arg(*f.IsFollowUp))
	}
	if f.ExcludeEmailType != "" {
		where = append(where, "email_type<>"+arg(f.ExcludeEmailType))
	}
	if f.RequireThreadIDs {
		where = append(where, "message_id<>''", "thread_id<>''")
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at>="+arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at<="+arg(*f.CreatedTo))
	}
	return where, args
}

func (s *Postgres) Find(ctx context.Context, f AuditFilter, sort Sort) ([]models.EmailAudit, error) {
	return s.find(ctx, f, sort, 0)
}

func (s *Postgres) FindOne(ctx context.Context, f AuditFilter, sort Sort) (*models.EmailAudit, error) {
	recs, err := s.find(ctx, f, sort, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

func (s *Postgres) find(ctx context.Context, f AuditFilter, sort Sort, limit int) ([]models.EmailAudit, error) {
	where, args := filterClauses(f, nil)

	query := "SELECT " + auditColumns + " FROM email_audits"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch sort {
	case CreatedAsc:
		query += " ORDER BY created_at ASC"
	case CreatedDesc:
		query += " ORDER BY created_at DESC"
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.EmailAudit
	for rows.Next() {
		var rec models.EmailAudit
		if err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.UserProfile,
			&rec.Name, &rec.Company, &rec.Email, &rec.Role, &rec.Link,
			&rec.Status, &rec.ErrorDetails,
			&rec.MessageID, &rec.ThreadID, &rec.IsFollowUp,
			&rec.OriginalMessageID, &rec.EmailType,
			&rec.ReplyReceived, &rec.FollowUpCount, &rec.LastFollowUpDate,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, "DELETE FROM email_audits WHERE id=$1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UserTemplate(ctx context.Context, profile string) (string, error) {
	var body string
	err := s.Pool.QueryRow(ctx,
		"SELECT user_template FROM user_templates WHERE user_profile=$1", profile,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return body, err
}

func (s *Postgres) SaveUserTemplate(ctx context.Context, profile, body string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO user_templates (user_profile, user_template) VALUES ($1,$2)
		 ON CONFLICT (user_profile) DO UPDATE SET user_template=EXCLUDED.user_template`,
		profile, body)
	return err
}

func (s *Postgres) FollowUpTemplate(ctx context.Context, profile string) (string, error) {
	var body string
	err := s.Pool.QueryRow(ctx,
		"SELECT follow_up_template FROM followup_templates WHERE user_profile=$1", profile,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return body, err
}

func (s *Postgres) SaveFollowUpTemplate(ctx context.Context, profile, body string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO followup_templates (user_profile, follow_up_template, last_updated)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (user_profile) DO UPDATE
		 SET follow_up_template=EXCLUDED.follow_up_template, last_updated=EXCLUDED.last_updated`,
		profile, body, time.Now().UTC())
	return err
}

func (s *Postgres) Profiles(ctx context.Context) ([]models.UserProfile, error) {
	rows, err := s.Pool.Query(ctx,
		"SELECT user_id, name, follow_up_template FROM user_profiles ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.UserProfile
	for rows.Next() {
		var p models.UserProfile
		if err := rows.Scan(&p.UserID, &p.Name, &p.FollowUpTemplate); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Postgres) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.Pool.QueryRow(ctx,
		"SELECT user_id, name, follow_up_template FROM user_profiles WHERE user_id=$1", userID,
	).Scan(&p.UserID, &p.Name, &p.FollowUpTemplate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) SaveProfile(ctx context.Context, p models.UserProfile) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, name, follow_up_template) VALUES ($1,$2,$3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET name=EXCLUDED.name, follow_up_template=EXCLUDED.follow_up_template`,
		p.UserID, p.Name, p.FollowUpTemplate)
	return err
}
