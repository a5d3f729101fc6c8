// Package advisor persists advisor rows, the matching engine's system of
// record. Embeddings and concept tags are stored as JSON text columns;
// filtered listings join institutions for location attributes.
package advisor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

// Repo is the advisor store adapter.
type Repo struct {
	db *sql.DB
}

// New creates an advisor repository over an opened database.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

const advisorColumns = `a.openalex_id, a.name, a.display_name, a.institution_id,
	a.works_count, a.cited_by_count, a.h_index, a.i10_index,
	a.concepts, a.research_summary, a.orcid, a.homepage_url, a.embedding,
	a.created_at, a.last_updated`

// GetByID returns the advisor with the given OpenAlex identifier.
func (r *Repo) GetByID(ctx context.Context, id string) (domain.Advisor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+advisorColumns+`, i.name
		 FROM advisors a
		 LEFT JOIN institutions i ON i.openalex_id = a.institution_id
		 WHERE a.openalex_id = ?`, id)

	adv, err := scanAdvisor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Advisor{}, fmt.Errorf("advisor %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Advisor{}, fmt.Errorf("get advisor %s: %w: %w", id, domain.ErrStoreFailure, err)
	}
	return adv, nil
}

// Upsert inserts the advisor or updates every mutable field of an existing
// row. The primary key is never overwritten.
func (r *Repo) Upsert(ctx context.Context, adv domain.Advisor) error {
	concepts, err := json.Marshal(adv.Concepts)
	if err != nil {
		return fmt.Errorf("marshal concepts: %w", err)
	}
	embedding, err := marshalVector(adv.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO advisors (
			openalex_id, name, display_name, institution_id,
			works_count, cited_by_count, h_index, i10_index,
			concepts, research_summary, orcid, homepage_url, embedding,
			created_at, last_updated
		 ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(openalex_id) DO UPDATE SET
			name = excluded.name,
			display_name = excluded.display_name,
			institution_id = excluded.institution_id,
			works_count = excluded.works_count,
			cited_by_count = excluded.cited_by_count,
			h_index = excluded.h_index,
			i10_index = excluded.i10_index,
			concepts = excluded.concepts,
			research_summary = excluded.research_summary,
			orcid = excluded.orcid,
			homepage_url = excluded.homepage_url,
			embedding = excluded.embedding,
			last_updated = excluded.last_updated`,
		adv.OpenAlexID, adv.Name, adv.DisplayName, nullable(adv.InstitutionID),
		adv.WorksCount, adv.CitedByCount, adv.HIndex, adv.I10Index,
		string(concepts), adv.ResearchSummary, adv.ORCID, adv.HomepageURL, embedding,
		now, now)
	if err != nil {
		return fmt.Errorf("upsert advisor %s: %w: %w", adv.OpenAlexID, domain.ErrStoreFailure, err)
	}
	return nil
}

// ListFiltered returns advisors matching the identifier set (when non-empty)
// and every supplied filter, combined with AND. Rows are ordered by name;
// callers applying similarity scores re-sort afterwards.
func (r *Repo) ListFiltered(
	ctx context.Context, ids []string, filters *domain.Filters, skip, limit int,
) ([]domain.Advisor, error) {
	var (
		where []string
		args  []any
	)

	if len(ids) > 0 {
		where = append(where, "a.openalex_id IN ("+placeholders(len(ids))+")")
		for _, id := range ids {
			args = append(args, id)
		}
	}
	if filters != nil {
		if filters.University != "" {
			where = append(where, "i.name LIKE ? COLLATE NOCASE")
			args = append(args, "%"+filters.University+"%")
		}
		if filters.Country != "" {
			where = append(where, "i.country LIKE ? COLLATE NOCASE")
			args = append(args, "%"+filters.Country+"%")
		}
		if filters.City != "" {
			where = append(where, "i.city LIKE ? COLLATE NOCASE")
			args = append(args, "%"+filters.City+"%")
		}
		if filters.MinWorksCount > 0 {
			where = append(where, "a.works_count >= ?")
			args = append(args, filters.MinWorksCount)
		}
		if filters.MinCitations > 0 {
			where = append(where, "a.cited_by_count >= ?")
			args = append(args, filters.MinCitations)
		}
		if len(filters.Concepts) > 0 {
			var any []string
			for _, c := range filters.Concepts {
				any = append(any, "a.concepts LIKE ? COLLATE NOCASE")
				args = append(args, "%"+c+"%")
			}
			where = append(where, "("+strings.Join(any, " OR ")+")")
		}
	}

	query := `SELECT ` + advisorColumns + `, i.name
		FROM advisors a
		LEFT JOIN institutions i ON i.openalex_id = a.institution_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.name ASC LIMIT ? OFFSET ?"
	args = append(args, limit, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list advisors: %w: %w", domain.ErrStoreFailure, err)
	}
	defer rows.Close()

	var advisors []domain.Advisor
	for rows.Next() {
		adv, err := scanAdvisor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan advisor: %w: %w", domain.ErrStoreFailure, err)
		}
		advisors = append(advisors, adv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list advisors: %w: %w", domain.ErrStoreFailure, err)
	}
	return advisors, nil
}

// ListEmbedded streams every advisor that has an embedding, for index
// rebuilds.
func (r *Repo) ListEmbedded(ctx context.Context) ([]domain.Advisor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT openalex_id, embedding FROM advisors
		 WHERE embedding IS NOT NULL AND embedding != ''
		 ORDER BY openalex_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list embedded advisors: %w: %w", domain.ErrStoreFailure, err)
	}
	defer rows.Close()

	var advisors []domain.Advisor
	for rows.Next() {
		var (
			adv domain.Advisor
			emb string
		)
		if err := rows.Scan(&adv.OpenAlexID, &emb); err != nil {
			return nil, fmt.Errorf("scan embedded advisor: %w: %w", domain.ErrStoreFailure, err)
		}
		if adv.Embedding, err = unmarshalVector(emb); err != nil {
			return nil, fmt.Errorf("advisor %s embedding: %w", adv.OpenAlexID, err)
		}
		advisors = append(advisors, adv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list embedded advisors: %w: %w", domain.ErrStoreFailure, err)
	}
	return advisors, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdvisor(row rowScanner) (domain.Advisor, error) {
	var (
		adv                       domain.Advisor
		institutionID             sql.NullString
		concepts, embedding       sql.NullString
		createdAt, lastUpdated    string
		displayName, summary      sql.NullString
		orcid, homepage, instName sql.NullString
	)
	err := row.Scan(
		&adv.OpenAlexID, &adv.Name, &displayName, &institutionID,
		&adv.WorksCount, &adv.CitedByCount, &adv.HIndex, &adv.I10Index,
		&concepts, &summary, &orcid, &homepage, &embedding,
		&createdAt, &lastUpdated, &instName,
	)
	if err != nil {
		return domain.Advisor{}, err
	}

	adv.DisplayName = displayName.String
	adv.InstitutionID = institutionID.String
	adv.ResearchSummary = summary.String
	adv.ORCID = orcid.String
	adv.HomepageURL = homepage.String
	adv.InstitutionName = instName.String

	if concepts.Valid && concepts.String != "" {
		if err := json.Unmarshal([]byte(concepts.String), &adv.Concepts); err != nil {
			return domain.Advisor{}, fmt.Errorf("unmarshal concepts: %w", err)
		}
	}
	if embedding.Valid && embedding.String != "" {
		if adv.Embedding, err = unmarshalVector(embedding.String); err != nil {
			return domain.Advisor{}, err
		}
	}
	if adv.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return domain.Advisor{}, fmt.Errorf("parse created_at: %w", err)
	}
	if adv.LastUpdated, err = time.Parse(time.RFC3339, lastUpdated); err != nil {
		return domain.Advisor{}, fmt.Errorf("parse last_updated: %w", err)
	}
	return adv, nil
}

func marshalVector(v []float32) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return v, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
