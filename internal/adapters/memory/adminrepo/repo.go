package adminrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/adminrepo"
)

// Repo is an in-memory implementation of adminrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.Mutex

	nextID int64
	byID   map[int64]domain.Admin
}

func NewRepo() *Repo {
	return &Repo{byID: make(map[int64]domain.Admin)}
}

func (r *Repo) Create(ctx context.Context, a domain.Admin) (domain.Admin, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.IsSuper {
		for _, x := range r.byID {
			if x.IsActive && x.IsSuper {
				return domain.Admin{}, adminrepo.ErrSuperExists
			}
		}
	}
	for _, x := range r.byID {
		if x.IsActive && x.ExternalAccount == a.ExternalAccount {
			return domain.Admin{}, adminrepo.ErrAccountTaken
		}
	}

	r.nextID++
	a.ID = r.nextID
	r.byID[a.ID] = cloneAdmin(a)
	return cloneAdmin(a), nil
}

func (r *Repo) Update(ctx context.Context, a domain.Admin) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[a.ID]; !ok {
		return adminrepo.ErrNotFound
	}
	r.byID[a.ID] = cloneAdmin(a)
	return nil
}

func (r *Repo) GetByExternalAccount(ctx context.Context, account domain.ExternalAccountID) (domain.Admin, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.IsActive && a.ExternalAccount == account {
			return cloneAdmin(a), nil
		}
	}
	return domain.Admin{}, adminrepo.ErrNotFound
}

func (r *Repo) GetByMemberID(ctx context.Context, id domain.MemberID) (domain.Admin, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.IsActive && a.MemberID == id {
			return cloneAdmin(a), nil
		}
	}
	return domain.Admin{}, adminrepo.ErrNotFound
}

func (r *Repo) GetSuper(ctx context.Context) (domain.Admin, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.IsActive && a.IsSuper {
			return cloneAdmin(a), nil
		}
	}
	return domain.Admin{}, adminrepo.ErrNotFound
}

func (r *Repo) List(ctx context.Context) ([]domain.Admin, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Admin, 0, len(r.byID))
	for _, a := range r.byID {
		if a.IsActive {
			out = append(out, cloneAdmin(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsSuper != out[j].IsSuper {
			return out[i].IsSuper
		}
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Repo) Count(ctx context.Context) (adminrepo.Count, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	var c adminrepo.Count
	for _, a := range r.byID {
		if !a.IsActive {
			continue
		}
		c.Total++
		if a.IsSuper {
			c.Super++
		}
	}
	c.Regular = c.Total - c.Super
	return c, nil
}

func cloneAdmin(a domain.Admin) domain.Admin {
	out := a
	if a.AddedBy != nil {
		v := *a.AddedBy
		out.AddedBy = &v
	}
	return out
}
