package domain

// Institution is the affiliation entity referenced by advisors via
// InstitutionID. One institution has many advisors; the advisor side holds
// only the identifier.
type Institution struct {
	OpenAlexID  string
	Name        string
	DisplayName string

	CountryCode string
	Country     string
	City        string
	Region      string

	Type        string // education, company, ...
	HomepageURL string
	RORID       string
	WorksCount  int
}
