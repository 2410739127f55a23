package appeal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcm/rcm/internal/domain/audit"
	"github.com/rcm/rcm/internal/domain/denial"
	"github.com/rcm/rcm/internal/platform/apperr"
	"github.com/rcm/rcm/internal/platform/db"
)

// memStore backs every repository used by the appeal workflow so a failed
// transaction can restore all of them at once.
type memStore struct {
	mu        sync.Mutex
	denials   map[uuid.UUID]denial.Denial
	claims    map[uuid.UUID]denial.ClaimSummary
	patients  map[uuid.UUID]denial.PatientSummary
	appeals   map[uuid.UUID]Appeal
	templates map[uuid.UUID]Template
	audits    []audit.Entry

	// numberCollisions makes NumberExists report that many collisions first.
	numberCollisions int
	createErr        error
	incrementErr     error
	templateErr      error
	appendErr        error
	// commitErr fails the outermost transaction after its body succeeded.
	commitErr error
}

func newMemStore() *memStore {
	return &memStore{
		denials:   map[uuid.UUID]denial.Denial{},
		claims:    map[uuid.UUID]denial.ClaimSummary{},
		patients:  map[uuid.UUID]denial.PatientSummary{},
		appeals:   map[uuid.UUID]Appeal{},
		templates: map[uuid.UUID]Template{},
	}
}

type storeSnapshot struct {
	denials map[uuid.UUID]denial.Denial
	appeals map[uuid.UUID]Appeal
	audits  []audit.Entry
}

func (s *memStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		denials: make(map[uuid.UUID]denial.Denial, len(s.denials)),
		appeals: make(map[uuid.UUID]Appeal, len(s.appeals)),
		audits:  append([]audit.Entry(nil), s.audits...),
	}
	for k, v := range s.denials {
		snap.denials[k] = v
	}
	for k, v := range s.appeals {
		snap.appeals[k] = v
	}
	return snap
}

func (s *memStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denials = snap.denials
	s.appeals = snap.appeals
	s.audits = snap.audits
}

type inTxKey struct{}

// transactor joins an enclosing transaction and restores the store when the
// outermost body fails.
func (s *memStore) transactor() db.Transactor {
	return db.TransactorFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
		if ctx.Value(inTxKey{}) != nil {
			return fn(ctx)
		}
		snap := s.snapshot()
		if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
			s.restore(snap)
			return err
		}
		if s.commitErr != nil {
			s.restore(snap)
			return s.commitErr
		}
		return nil
	})
}

func (s *memStore) getDenial(id uuid.UUID) denial.Denial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.denials[id]
}

func (s *memStore) getAppeal(id uuid.UUID) Appeal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appeals[id]
}

func (s *memStore) setAppealStatus(id uuid.UUID, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.appeals[id]
	a.Status = st
	s.appeals[id] = a
}

func (s *memStore) setDenialStatus(id uuid.UUID, st denial.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.denials[id]
	d.Status = st
	s.denials[id] = d
}

func (s *memStore) auditActions(denialID uuid.UUID) []audit.ActionType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.ActionType
	for _, e := range s.audits {
		if e.DenialID == denialID {
			out = append(out, e.ActionType)
		}
	}
	return out
}

func (s *memStore) addTemplate(t Template) *Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Date(2026, 1, 1, 0, 0, len(s.templates), 0, time.UTC)
	s.templates[t.ID] = t
	return &t
}

// -- denial.Repository --

type denialRepo struct{ s *memStore }

func (r denialRepo) get(id uuid.UUID) (*denial.Denial, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.denials[id]
	if !ok {
		return nil, apperr.NotFound("denial", id.String())
	}
	return &d, nil
}

func (r denialRepo) Create(_ context.Context, d *denial.Denial) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	r.s.denials[d.ID] = *d
	return nil
}

func (r denialRepo) GetByID(_ context.Context, id uuid.UUID) (*denial.Denial, error) {
	return r.get(id)
}

func (r denialRepo) GetForUpdate(_ context.Context, id uuid.UUID) (*denial.Denial, error) {
	return r.get(id)
}

func (r denialRepo) GetContext(_ context.Context, id uuid.UUID) (*denial.Context, error) {
	d, err := r.get(id)
	if err != nil {
		return nil, err
	}
	out := &denial.Context{Denial: d}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ClaimID != nil {
		if c, ok := r.s.claims[*d.ClaimID]; ok {
			out.Claim = &c
		}
	}
	if d.PatientID != nil {
		if p, ok := r.s.patients[*d.PatientID]; ok {
			out.Patient = &p
		}
	}
	return out, nil
}

func (r denialRepo) UpdateStatus(_ context.Context, d *denial.Denial) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.denials[d.ID]
	if !ok {
		return apperr.NotFound("denial", d.ID.String())
	}
	cur.Status = d.Status
	cur.ResolutionType = d.ResolutionType
	cur.ResolvedAt = d.ResolvedAt
	r.s.denials[d.ID] = cur
	return nil
}

func (r denialRepo) UpdatePriority(_ context.Context, id uuid.UUID, p denial.Priority) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := r.s.denials[id]
	d.Priority = p
	r.s.denials[id] = d
	return nil
}

func (r denialRepo) List(_ context.Context, _ denial.ListFilter) ([]*denial.Denial, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*denial.Denial
	for _, d := range r.s.denials {
		d := d
		out = append(out, &d)
	}
	return out, len(out), nil
}

func (r denialRepo) ListOpen(ctx context.Context) ([]*denial.Denial, error) {
	all, _, err := r.List(ctx, denial.ListFilter{})
	var open []*denial.Denial
	for _, d := range all {
		if !d.Status.IsTerminal() {
			open = append(open, d)
		}
	}
	return open, err
}

// -- Repository --

type appealRepo struct{ s *memStore }

func (r appealRepo) Create(_ context.Context, a *Appeal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createErr != nil {
		return r.s.createErr
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.s.appeals[a.ID] = *a
	return nil
}

func (r appealRepo) get(id uuid.UUID) (*Appeal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appeals[id]
	if !ok {
		return nil, apperr.NotFound("appeal", id.String())
	}
	return &a, nil
}

func (r appealRepo) GetByID(_ context.Context, id uuid.UUID) (*Appeal, error) { return r.get(id) }

func (r appealRepo) GetForUpdate(_ context.Context, id uuid.UUID) (*Appeal, error) { return r.get(id) }

func (r appealRepo) Update(_ context.Context, a *Appeal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.appeals[a.ID]; !ok {
		return apperr.NotFound("appeal", a.ID.String())
	}
	a.UpdatedAt = time.Now()
	r.s.appeals[a.ID] = *a
	return nil
}

func (r appealRepo) ListByDenial(_ context.Context, denialID uuid.UUID, limit, offset int) ([]*Appeal, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*Appeal
	for _, a := range r.s.appeals {
		if a.DenialID == denialID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppealNumber < out[j].AppealNumber })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r appealRepo) NumberExists(_ context.Context, number string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.numberCollisions > 0 {
		r.s.numberCollisions--
		return true, nil
	}
	for _, a := range r.s.appeals {
		if a.AppealNumber == number {
			return true, nil
		}
	}
	return false, nil
}

// -- TemplateRepository --

type templateRepo struct{ s *memStore }

func (r templateRepo) GetByID(_ context.Context, id uuid.UUID) (*Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.templateErr != nil {
		return nil, r.s.templateErr
	}
	t, ok := r.s.templates[id]
	if !ok {
		return nil, apperr.NotFound("appeal_template", id.String())
	}
	return &t, nil
}

func (r templateRepo) sorted(keep func(Template) bool) []*Template {
	var out []*Template
	for _, t := range r.s.templates {
		if keep(t) {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r templateRepo) FindActiveByCategory(_ context.Context, category denial.Category) ([]*Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.templateErr != nil {
		return nil, r.s.templateErr
	}
	return r.sorted(func(t Template) bool {
		return t.Active && t.DenialCategory != nil && *t.DenialCategory == category
	}), nil
}

func (r templateRepo) FindGlobalDefault(_ context.Context) (*Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.templateErr != nil {
		return nil, r.s.templateErr
	}
	matches := r.sorted(func(t Template) bool {
		return t.Active && t.IsDefault && t.DenialCategory == nil
	})
	if len(matches) == 0 {
		return nil, apperr.NotFound("appeal_template", "")
	}
	return matches[0], nil
}

func (r templateRepo) IncrementUsage(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.incrementErr != nil {
		return r.s.incrementErr
	}
	t := r.s.templates[id]
	t.UsageCount++
	r.s.templates[id] = t
	return nil
}

func (r templateRepo) List(_ context.Context, activeOnly bool) ([]*Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.sorted(func(t Template) bool { return !activeOnly || t.Active }), nil
}

// -- audit.Repository --

type auditRepo struct{ s *memStore }

func (r auditRepo) Append(_ context.Context, e *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.appendErr != nil {
		return r.s.appendErr
	}
	r.s.audits = append(r.s.audits, *e)
	return nil
}

func (r auditRepo) ListByDenial(_ context.Context, denialID uuid.UUID, _, _ int) ([]*audit.Entry, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*audit.Entry
	for _, e := range r.s.audits {
		if e.DenialID == denialID {
			e := e
			out = append(out, &e)
		}
	}
	return out, len(out), nil
}

// -- TextGenerator --

type stubGenerator struct {
	mu         sync.Mutex
	configured bool
	out        string
	err        error
	block      bool
	calls      int
	lastSystem string
	lastUser   string
}

func (g *stubGenerator) Configured() bool { return g.configured }

func (g *stubGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.lastSystem, g.lastUser = system, user
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.out, g.err
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var errBoom = errors.New("boom")
