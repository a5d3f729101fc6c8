package sync

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/scholarmatch/scholarmatch/internal/domain"
	"github.com/scholarmatch/scholarmatch/internal/index"
	"github.com/scholarmatch/scholarmatch/internal/transport/openalex"
)

type mockFeed struct {
	pages        []openalex.AuthorsPage
	pageErr      error
	pageCalls    int
	institutions map[string]openalex.InstitutionDetail
	detailCalls  int
}

func (m *mockFeed) AuthorsPage(_ context.Context, _, _ string) (openalex.AuthorsPage, error) {
	if m.pageErr != nil {
		return openalex.AuthorsPage{}, m.pageErr
	}
	page := m.pages[m.pageCalls]
	m.pageCalls++
	return page, nil
}

func (m *mockFeed) Institution(_ context.Context, id string) (openalex.InstitutionDetail, error) {
	m.detailCalls++
	detail, ok := m.institutions[id]
	if !ok {
		return openalex.InstitutionDetail{}, domain.ErrUpstreamFailure
	}
	return detail, nil
}

type mockAdvisors struct {
	existing map[string]domain.Advisor
	embedded []domain.Advisor
	upserts  []domain.Advisor
}

func (m *mockAdvisors) GetByID(_ context.Context, id string) (domain.Advisor, error) {
	if adv, ok := m.existing[id]; ok {
		return adv, nil
	}
	return domain.Advisor{}, domain.ErrNotFound
}

func (m *mockAdvisors) Upsert(_ context.Context, adv domain.Advisor) error {
	m.upserts = append(m.upserts, adv)
	return nil
}

func (m *mockAdvisors) ListEmbedded(_ context.Context) ([]domain.Advisor, error) {
	return m.embedded, nil
}

type mockInstitutions struct {
	rows    map[string]domain.Institution
	creates []domain.Institution
}

func (m *mockInstitutions) GetByID(_ context.Context, id string) (domain.Institution, error) {
	if inst, ok := m.rows[id]; ok {
		return inst, nil
	}
	return domain.Institution{}, domain.ErrNotFound
}

func (m *mockInstitutions) Create(_ context.Context, inst domain.Institution) error {
	m.creates = append(m.creates, inst)
	return nil
}

type mockIndex struct {
	added    []string
	rebuilt  []index.Entry
	saves    int
	saveErr  error
	rebuildN bool
}

func (m *mockIndex) Add(advisorID string, _ []float32) error {
	m.added = append(m.added, advisorID)
	return nil
}

func (m *mockIndex) Rebuild(entries []index.Entry) error {
	m.rebuilt = entries
	m.rebuildN = true
	return nil
}

func (m *mockIndex) Save(_, _ string) error {
	m.saves++
	return m.saveErr
}

func (m *mockIndex) Size() int { return len(m.added) }
func (m *mockIndex) Live() int { return len(m.added) }

type mockEmbedder struct {
	failOn string
	inputs []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.inputs = append(m.inputs, text)
	if m.failOn != "" && text == m.failOn {
		return domain.EmbeddingResult{}, domain.ErrProviderUnavailable
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

func author(id, name string, concepts ...string) openalex.AuthorRecord {
	rec := openalex.AuthorRecord{ID: "https://openalex.org/" + id, DisplayName: name}
	for _, c := range concepts {
		rec.Concepts = append(rec.Concepts, openalex.ConceptRecord{DisplayName: c, Score: 0.5})
	}
	return rec
}

type mockBatchEmbedder struct {
	mockEmbedder
	batchCalls int
	batchErr   error
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{0.1, 0.2}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

func newTestService(feed *mockFeed, advisors *mockAdvisors, institutions *mockInstitutions, idx *mockIndex, embed Embedder) *Service {
	return New(feed, advisors, institutions, idx, embed,
		Config{VectorPath: "unused.vec", MappingPath: "unused.json"}, zap.NewNop())
}

func TestSyncInstitution_TwoPages(t *testing.T) {
	feed := &mockFeed{pages: []openalex.AuthorsPage{
		{Records: []openalex.AuthorRecord{author("A1", "Ada Lovelace", "Computation")}, NextCursor: "p2"},
		{Records: []openalex.AuthorRecord{author("A2", "Alan Turing")}},
	}}
	advisors := &mockAdvisors{}
	idx := &mockIndex{}

	svc := newTestService(feed, advisors, &mockInstitutions{}, idx, &mockEmbedder{})
	report, err := svc.SyncInstitution(context.Background(), "ror1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Pages != 2 || report.Created != 2 || report.Updated != 0 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(advisors.upserts) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(advisors.upserts))
	}
	if len(idx.added) != 2 || idx.added[0] != "A1" {
		t.Errorf("expected trimmed ids indexed, got %v", idx.added)
	}
	if idx.saves != 1 {
		t.Errorf("expected index persisted once after the run, got %d saves", idx.saves)
	}
}

func TestSyncInstitution_CreateThenUpdate(t *testing.T) {
	feed := &mockFeed{pages: []openalex.AuthorsPage{
		{Records: []openalex.AuthorRecord{author("A1", "Ada Lovelace")}},
	}}
	advisors := &mockAdvisors{existing: map[string]domain.Advisor{
		"A1": {OpenAlexID: "A1", Name: "Ada Lovelace"},
	}}

	svc := newTestService(feed, advisors, &mockInstitutions{}, &mockIndex{}, &mockEmbedder{})
	report, err := svc.SyncInstitution(context.Background(), "ror1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 0 || report.Updated != 1 {
		t.Fatalf("expected one update, got %+v", report)
	}
}

func TestSyncInstitution_RecordFailureContinues(t *testing.T) {
	feed := &mockFeed{pages: []openalex.AuthorsPage{
		{Records: []openalex.AuthorRecord{
			author("A1", "Ada Lovelace"),
			author("A2", "Broken Record"),
			author("A3", "Alan Turing"),
		}},
	}}
	idx := &mockIndex{}
	embed := &mockEmbedder{failOn: "Broken Record"}

	svc := newTestService(feed, &mockAdvisors{}, &mockInstitutions{}, idx, embed)
	report, err := svc.SyncInstitution(context.Background(), "ror1")
	if err != nil {
		t.Fatalf("a record failure must not end the run: %v", err)
	}
	if report.Created != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if idx.saves != 1 {
		t.Errorf("expected index persisted despite failures, got %d saves", idx.saves)
	}
}

func TestSyncInstitution_BatchEmbedsWholePage(t *testing.T) {
	feed := &mockFeed{pages: []openalex.AuthorsPage{
		{Records: []openalex.AuthorRecord{
			author("A1", "Ada Lovelace"),
			author("A2", "Alan Turing"),
		}, NextCursor: "p2"},
		{Records: []openalex.AuthorRecord{author("A3", "Grace Hopper")}},
	}}
	idx := &mockIndex{}
	embed := &mockBatchEmbedder{}

	svc := newTestService(feed, &mockAdvisors{}, &mockInstitutions{}, idx, embed)
	report, err := svc.SyncInstitution(context.Background(), "ror1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embed.batchCalls != 2 {
		t.Errorf("expected one batch call per page, got %d", embed.batchCalls)
	}
	if len(embed.inputs) != 0 {
		t.Errorf("expected no single-text calls with a batch provider, got %v", embed.inputs)
	}
	if report.Created != 3 || len(idx.added) != 3 {
		t.Fatalf("unexpected report %+v, indexed %v", report, idx.added)
	}
}

func TestSyncInstitution_BatchFailureRetriesPerRecord(t *testing.T) {
	feed := &mockFeed{pages: []openalex.AuthorsPage{
		{Records: []openalex.AuthorRecord{
			author("A1", "Ada Lovelace"),
			author("A2", "Broken Record"),
			author("A3", "Alan Turing"),
		}},
	}}
	embed := &mockBatchEmbedder{batchErr: domain.ErrProviderUnavailable}
	embed.failOn = "Broken Record"

	svc := newTestService(feed, &mockAdvisors{}, &mockInstitutions{}, &mockIndex{}, embed)
	report, err := svc.SyncInstitution(context.Background(), "ror1")
	if err != nil {
		t.Fatalf("a failed batch must degrade, not end the run: %v", err)
	}
	if embed.batchCalls != 1 {
		t.Errorf("expected one batch attempt, got %d", embed.batchCalls)
	}
	if len(embed.inputs) != 3 {
		t.Errorf("expected per-record retries for the whole page, got %v", embed.inputs)
	}
	if report.Created != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestSyncInstitution_FeedFailureEndsRun(t *testing.T) {
	feed := &mockFeed{pageErr: domain.ErrUpstreamFailure}

	svc := newTestService(feed, &mockAdvisors{}, &mockInstitutions{}, &mockIndex{}, &mockEmbedder{})
	_, err := svc.SyncInstitution(context.Background(), "ror1")
	if !errors.Is(err, domain.ErrUpstreamFailure) {
		t.Fatalf("expected ErrUpstreamFailure, got %v", err)
	}
}

func TestSyncInstitution_ResolvesInstitutionOnce(t *testing.T) {
	rec1 := author("A1", "Ada Lovelace")
	rec1.LastKnownInstitution = &openalex.InstitutionRef{ID: "https://openalex.org/I100", DisplayName: "Stanford"}
	rec2 := author("A2", "Alan Turing")
	rec2.LastKnownInstitution = &openalex.InstitutionRef{ID: "https://openalex.org/I100", DisplayName: "Stanford"}

	detail := openalex.InstitutionDetail{
		ID:          "https://openalex.org/I100",
		DisplayName: "Stanford University",
		CountryCode: "US",
	}
	detail.Geo.City = "Stanford"

	feed := &mockFeed{
		pages:        []openalex.AuthorsPage{{Records: []openalex.AuthorRecord{rec1, rec2}}},
		institutions: map[string]openalex.InstitutionDetail{"I100": detail},
	}
	advisors := &mockAdvisors{}
	institutions := &mockInstitutions{}
	embed := &mockEmbedder{}

	svc := newTestService(feed, advisors, institutions, &mockIndex{}, embed)
	if _, err := svc.SyncInstitution(context.Background(), "ror1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if feed.detailCalls != 1 {
		t.Errorf("expected one detail fetch for a repeated affiliation, got %d", feed.detailCalls)
	}
	if len(institutions.creates) != 1 || institutions.creates[0].OpenAlexID != "I100" {
		t.Fatalf("expected institution created once, got %+v", institutions.creates)
	}
	if institutions.creates[0].City != "Stanford" {
		t.Errorf("expected geo city carried over, got %q", institutions.creates[0].City)
	}
	if advisors.upserts[0].InstitutionID != "I100" {
		t.Errorf("expected advisor linked to institution, got %q", advisors.upserts[0].InstitutionID)
	}
	want := "Ada Lovelace. Institution: Stanford University"
	if embed.inputs[0] != want {
		t.Errorf("expected summary %q, got %q", want, embed.inputs[0])
	}
}

func TestRebuildFromStore(t *testing.T) {
	advisors := &mockAdvisors{embedded: []domain.Advisor{
		{OpenAlexID: "A1", Embedding: []float32{1, 0}},
		{OpenAlexID: "A2", Embedding: []float32{0, 1}},
	}}
	idx := &mockIndex{}

	svc := newTestService(&mockFeed{}, advisors, &mockInstitutions{}, idx, &mockEmbedder{})
	count, err := svc.RebuildFromStore(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 vectors, got %d", count)
	}
	if !idx.rebuildN || len(idx.rebuilt) != 2 || idx.rebuilt[0].AdvisorID != "A1" {
		t.Fatalf("unexpected rebuild entries: %+v", idx.rebuilt)
	}
	if idx.saves != 1 {
		t.Errorf("expected index persisted after rebuild, got %d saves", idx.saves)
	}
}

func TestBuildSummary(t *testing.T) {
	rec := author("A1", "Ada Lovelace",
		"Computation", "Mathematics", "Logic", "Engines", "Poetry", "Surplus")

	got := buildSummary(rec, "University of London")
	want := "Ada Lovelace. Research areas: Computation, Mathematics, Logic, Engines, Poetry. " +
		"Institution: University of London"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if got := buildSummary(author("A2", "Alan Turing"), ""); got != "Alan Turing" {
		t.Errorf("expected bare name when other parts absent, got %q", got)
	}
}
