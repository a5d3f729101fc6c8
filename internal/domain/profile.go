package domain

import "time"

// Profile is the query subject for matching: an applicant's interests and
// resume text drive the embedding. ResumeEmbedding is a cache of the last
// derived embedding; staleness is tolerated, it is never auto-invalidated.
type Profile struct {
	ID       string
	Email    string
	FullName string

	EducationLevel    string
	FieldOfStudy      string
	ResearchInterests []string

	ResumeText      string
	ResumeEmbedding []float32

	CreatedAt time.Time
	UpdatedAt time.Time
}
