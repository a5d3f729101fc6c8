// Package profile persists applicant profiles, the query subjects of the
// matching engine.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

// Repo is the profile store adapter.
type Repo struct {
	db *sql.DB
}

// New creates a profile repository over an opened database.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// GetByID returns the profile with the given identifier.
func (r *Repo) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	var (
		p                     domain.Profile
		fullName, education   sql.NullString
		field, interests      sql.NullString
		resumeText, resumeEmb sql.NullString
		createdAt, updatedAt  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, education_level, field_of_study,
		        research_interests, resume_text, resume_embedding,
		        created_at, updated_at
		 FROM profiles WHERE id = ?`, id).Scan(
		&p.ID, &p.Email, &fullName, &education, &field, &interests,
		&resumeText, &resumeEmb, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile %s: %w: %w", id, domain.ErrStoreFailure, err)
	}

	p.FullName = fullName.String
	p.EducationLevel = education.String
	p.FieldOfStudy = field.String
	p.ResumeText = resumeText.String

	if interests.Valid && interests.String != "" {
		if err := json.Unmarshal([]byte(interests.String), &p.ResearchInterests); err != nil {
			return domain.Profile{}, fmt.Errorf("unmarshal interests: %w", err)
		}
	}
	if resumeEmb.Valid && resumeEmb.String != "" {
		if err := json.Unmarshal([]byte(resumeEmb.String), &p.ResumeEmbedding); err != nil {
			return domain.Profile{}, fmt.Errorf("unmarshal resume embedding: %w", err)
		}
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return domain.Profile{}, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return domain.Profile{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return p, nil
}

// Create inserts a new profile, assigning its identifier.
func (r *Repo) Create(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	interests, err := json.Marshal(p.ResearchInterests)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("marshal interests: %w", err)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO profiles (
			id, email, full_name, education_level, field_of_study,
			research_interests, resume_text, resume_embedding,
			created_at, updated_at
		 ) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Email, p.FullName, p.EducationLevel, p.FieldOfStudy,
		string(interests), p.ResumeText, "",
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return domain.Profile{}, fmt.Errorf("create profile: %w: %w", domain.ErrStoreFailure, err)
	}
	return p, nil
}

// SaveEmbedding caches a derived embedding onto the profile row. This is the
// one write the match read-path performs; callers treat its failure as
// non-fatal.
func (r *Repo) SaveEmbedding(ctx context.Context, id string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET resume_embedding = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("save profile embedding: %w: %w", domain.ErrStoreFailure, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
