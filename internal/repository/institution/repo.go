// Package institution persists affiliation rows referenced by advisors.
package institution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

// Repo is the institution store adapter.
type Repo struct {
	db *sql.DB
}

// New creates an institution repository over an opened database.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// GetByID returns the institution with the given OpenAlex identifier.
func (r *Repo) GetByID(ctx context.Context, id string) (domain.Institution, error) {
	var (
		inst                           domain.Institution
		displayName, countryCode       sql.NullString
		country, city, region          sql.NullString
		instType, homepageURL, rorID   sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT openalex_id, name, display_name, country_code, country, city,
		        region, type, homepage_url, ror_id, works_count
		 FROM institutions WHERE openalex_id = ?`, id).Scan(
		&inst.OpenAlexID, &inst.Name, &displayName, &countryCode, &country,
		&city, &region, &instType, &homepageURL, &rorID, &inst.WorksCount)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Institution{}, fmt.Errorf("institution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Institution{}, fmt.Errorf("get institution %s: %w: %w", id, domain.ErrStoreFailure, err)
	}

	inst.DisplayName = displayName.String
	inst.CountryCode = countryCode.String
	inst.Country = country.String
	inst.City = city.String
	inst.Region = region.String
	inst.Type = instType.String
	inst.HomepageURL = homepageURL.String
	inst.RORID = rorID.String
	return inst, nil
}

// Create inserts the institution. Creation is idempotent: an existing row
// with the same identifier is left untouched.
func (r *Repo) Create(ctx context.Context, inst domain.Institution) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO institutions (
			openalex_id, name, display_name, country_code, country, city,
			region, type, homepage_url, ror_id, works_count
		 ) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		inst.OpenAlexID, inst.Name, inst.DisplayName, inst.CountryCode,
		inst.Country, inst.City, inst.Region, inst.Type, inst.HomepageURL,
		inst.RORID, inst.WorksCount)
	if err != nil {
		return fmt.Errorf("create institution %s: %w: %w", inst.OpenAlexID, domain.ErrStoreFailure, err)
	}
	return nil
}
