package memberrepo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
)

// Repo is an in-memory implementation of memberrepo.Repository.
// It is safe for concurrent use; the mutex makes sequence assignment and
// insert one atomic unit.
type Repo struct {
	mu sync.Mutex

	seq       int
	byID      map[domain.MemberID]domain.Member
	idByPhone map[string]domain.MemberID
	idByAcct  map[domain.ExternalAccountID]domain.MemberID

	// order preserves insertion order so List can return newest first.
	order []domain.MemberID
}

func NewRepo() *Repo {
	return &Repo{
		byID:      make(map[domain.MemberID]domain.Member),
		idByPhone: make(map[string]domain.MemberID),
		idByAcct:  make(map[domain.ExternalAccountID]domain.MemberID),
	}
}

func (r *Repo) Create(ctx context.Context, m domain.Member) (domain.Member, error) {
	_ = ctx
	if m.ID != "" {
		return domain.Member{}, fmt.Errorf("member id is repository-assigned, got %q", m.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.idByPhone[m.Phone]; ok {
		return domain.Member{}, memberrepo.ErrPhoneTaken
	}
	if m.ExternalAccount != nil {
		if _, ok := r.idByAcct[*m.ExternalAccount]; ok {
			return domain.Member{}, memberrepo.ErrAccountTaken
		}
	}

	r.seq++
	m.ID = domain.FormatMemberID(r.seq)

	r.byID[m.ID] = cloneMember(m)
	r.idByPhone[m.Phone] = m.ID
	if m.ExternalAccount != nil {
		r.idByAcct[*m.ExternalAccount] = m.ID
	}
	r.order = append(r.order, m.ID)
	return cloneMember(m), nil
}

func (r *Repo) Update(ctx context.Context, m domain.Member) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[m.ID]
	if !ok {
		return memberrepo.ErrNotFound
	}
	if m.Phone != existing.Phone {
		if owner, ok := r.idByPhone[m.Phone]; ok && owner != m.ID {
			return memberrepo.ErrPhoneTaken
		}
		delete(r.idByPhone, existing.Phone)
		r.idByPhone[m.Phone] = m.ID
	}
	// The account binding is immutable through Update.
	m.ExternalAccount = cloneAccount(existing.ExternalAccount)

	r.byID[m.ID] = cloneMember(m)
	return nil
}

func (r *Repo) Link(ctx context.Context, id domain.MemberID, account domain.ExternalAccountID, now time.Time) (domain.Member, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return domain.Member{}, memberrepo.ErrNotFound
	}
	if m.ExternalAccount != nil {
		return domain.Member{}, memberrepo.ErrAlreadyLinked
	}
	if _, ok := r.idByAcct[account]; ok {
		return domain.Member{}, memberrepo.ErrAccountTaken
	}

	m.ExternalAccount = &account
	m.UpdatedAt = now
	r.byID[id] = cloneMember(m)
	r.idByAcct[account] = id
	return cloneMember(m), nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (domain.Member, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return domain.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(m), nil
}

func (r *Repo) GetByExternalAccount(ctx context.Context, account domain.ExternalAccountID) (domain.Member, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.idByAcct[account]
	if !ok {
		return domain.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(r.byID[id]), nil
}

func (r *Repo) GetByPhone(ctx context.Context, phone string) (domain.Member, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.idByPhone[phone]
	if !ok {
		return domain.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(r.byID[id]), nil
}

func (r *Repo) List(ctx context.Context, includeInactive bool) ([]domain.Member, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Member, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		m := r.byID[r.order[i]]
		if !includeInactive && !m.IsActive {
			continue
		}
		out = append(out, cloneMember(m))
	}
	return out, nil
}

func (r *Repo) Search(ctx context.Context, query string, limit int) ([]domain.Member, error) {
	_ = ctx
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []domain.Member{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Member, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		m := r.byID[r.order[i]]
		if !m.IsActive {
			continue
		}
		if matches(m, q) {
			out = append(out, cloneMember(m))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repo) ExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Member, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Member, 0)
	for _, m := range r.byID {
		if !m.IsActive || !m.Plan.Paid() || m.PlanExpiry == nil {
			continue
		}
		if m.PlanExpiry.After(from) && !m.PlanExpiry.After(to) {
			out = append(out, cloneMember(m))
		}
	}
	sortByID(out)
	return out, nil
}

func (r *Repo) ExpiredBefore(ctx context.Context, t time.Time) ([]domain.Member, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Member, 0)
	for _, m := range r.byID {
		if !m.IsActive || !m.Plan.Paid() || m.PlanExpiry == nil {
			continue
		}
		if m.PlanExpiry.Before(t) {
			out = append(out, cloneMember(m))
		}
	}
	sortByID(out)
	return out, nil
}

func (r *Repo) Statistics(ctx context.Context, now time.Time) (memberrepo.Stats, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	var s memberrepo.Stats
	var birthSum int
	for _, m := range r.byID {
		if !m.IsActive {
			continue
		}
		s.Total++
		switch m.Plan {
		case domain.PlanFree:
			s.Free++
		case domain.PlanMoney:
			s.Money++
		case domain.PlanPremium:
			s.Premium++
		}
		if m.IsLinked() {
			s.Linked++
		}
		birthSum += m.BirthYear
	}
	if s.Total > 0 {
		avgBirth := float64(birthSum) / float64(s.Total)
		s.AverageAge = math.Round((float64(now.Year())-avgBirth)*10) / 10
	}
	return s, nil
}

func matches(m domain.Member, q string) bool {
	return strings.Contains(strings.ToLower(string(m.ID)), q) ||
		strings.Contains(strings.ToLower(m.GivenName), q) ||
		strings.Contains(strings.ToLower(m.FamilyName), q) ||
		strings.Contains(m.Phone, q)
}

func sortByID(ms []domain.Member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
}

func cloneMember(m domain.Member) domain.Member {
	out := m
	out.ExternalAccount = cloneAccount(m.ExternalAccount)
	if m.PlanExpiry != nil {
		t := *m.PlanExpiry
		out.PlanExpiry = &t
	}
	return out
}

func cloneAccount(p *domain.ExternalAccountID) *domain.ExternalAccountID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
