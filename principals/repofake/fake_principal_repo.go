package repofake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shelfward/shelfward-server/principals"
)

var _ principals.Repo = (*FakePrincipalRepo)(nil)

type FakePrincipalRepo struct {
	principals map[string]*principals.Principal
	emailIds   map[string]string // email to principal id
	lock       sync.RWMutex
}

func NewFakePrincipalRepo() *FakePrincipalRepo {
	return &FakePrincipalRepo{
		principals: make(map[string]*principals.Principal),
		emailIds:   make(map[string]string),
	}
}

func (pr *FakePrincipalRepo) Upsert(_ context.Context, p *principals.Principal) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.DateJoined.IsZero() {
		p.DateJoined = time.Now()
	}
	pr.principals[p.ID] = clone(p)
	pr.emailIds[p.Email] = p.ID
	return nil
}

func (pr *FakePrincipalRepo) Delete(_ context.Context, id string) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	p, ok := pr.principals[id]
	if !ok {
		return principals.ErrNotFound
	}
	delete(pr.emailIds, p.Email)
	delete(pr.principals, id)
	return nil
}

func (pr *FakePrincipalRepo) GetByID(_ context.Context, id string) (*principals.Principal, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	p, ok := pr.principals[id]
	if !ok {
		return nil, principals.ErrNotFound
	}
	return clone(p), nil
}

func (pr *FakePrincipalRepo) GetByEmail(_ context.Context, email string) (*principals.Principal, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	id, ok := pr.emailIds[email]
	if !ok {
		return nil, principals.ErrNotFound
	}
	return clone(pr.principals[id]), nil
}

func (pr *FakePrincipalRepo) List(_ context.Context, offset, limit int) ([]*principals.Principal, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	list := make([]*principals.Principal, 0, len(pr.principals))
	for _, p := range pr.principals {
		list = append(list, clone(p))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	if offset >= len(list) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	return list[offset:end], nil
}

func (pr *FakePrincipalRepo) SetSession(_ context.Context, id, sessionID string) error {
	return pr.update(id, func(p *principals.Principal) {
		p.SessionID = &sessionID
	})
}

func (pr *FakePrincipalRepo) SetAPIKey(_ context.Context, id, apiKey string) error {
	return pr.update(id, func(p *principals.Principal) {
		p.APIKey = &apiKey
		p.LastLogin = time.Now()
	})
}

func (pr *FakePrincipalRepo) SetOTP(_ context.Context, id, code string) error {
	return pr.update(id, func(p *principals.Principal) {
		p.OTPCode = &code
	})
}

func (pr *FakePrincipalRepo) ClearOTP(_ context.Context, id string) error {
	return pr.update(id, func(p *principals.Principal) {
		p.OTPCode = nil
	})
}

func (pr *FakePrincipalRepo) ClearSession(_ context.Context, id string) error {
	return pr.update(id, func(p *principals.Principal) {
		p.SessionID = nil
		p.APIKey = nil
		p.OTPCode = nil
	})
}

func (pr *FakePrincipalRepo) SetBlocked(_ context.Context, id string, blocked bool) error {
	return pr.update(id, func(p *principals.Principal) {
		p.Blocked = blocked
	})
}

func (pr *FakePrincipalRepo) update(id string, fn func(*principals.Principal)) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	p, ok := pr.principals[id]
	if !ok {
		return principals.ErrNotFound
	}
	fn(p)
	return nil
}

func clone(p *principals.Principal) *principals.Principal {
	c := *p
	if p.SessionID != nil {
		v := *p.SessionID
		c.SessionID = &v
	}
	if p.OTPCode != nil {
		v := *p.OTPCode
		c.OTPCode = &v
	}
	if p.APIKey != nil {
		v := *p.APIKey
		c.APIKey = &v
	}
	return &c
}
