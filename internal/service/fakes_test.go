package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/model"
	"github.com/gleenn/diaspora/internal/repository"
)

// memStore is an in-memory backend with the same uniqueness and cascade
// rules as the PostgreSQL repositories.
type memStore struct {
	mu       sync.Mutex
	people   map[uuid.UUID]*model.Person
	byHandle map[handle.Handle]uuid.UUID
	users    map[uuid.UUID]*model.User
	posts    map[uuid.UUID]*model.Post
	comments map[uuid.UUID]*model.Comment
	contacts map[[2]uuid.UUID]*model.Contact

	creates      atomic.Int32
	beforeCreate func(p *model.Person)
	findErr      error
	destroyErr   error
}

var (
	_ repository.PersonRepository    = (*memStore)(nil)
	_ repository.UserRepository      = userRepo{}
	_ repository.ContentRepository   = (*memStore)(nil)
	_ repository.ContactRepository   = (*memStore)(nil)
	_ repository.LifecycleRepository = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		people:   map[uuid.UUID]*model.Person{},
		byHandle: map[handle.Handle]uuid.UUID{},
		users:    map[uuid.UUID]*model.User{},
		posts:    map[uuid.UUID]*model.Post{},
		comments: map[uuid.UUID]*model.Comment{},
		contacts: map[[2]uuid.UUID]*model.Contact{},
	}
}

func (m *memStore) FindByHandle(_ context.Context, h handle.Handle) (*model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	id, ok := m.byHandle[h]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *m.people[id]
	return &c, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *memStore) ExistsWithHandle(_ context.Context, h handle.Handle, excluding uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHandle[h]
	return ok && id != excluding, nil
}

func (m *memStore) Create(_ context.Context, p *model.Person) error {
	if m.beforeCreate != nil {
		m.beforeCreate(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(p)
}

func (m *memStore) insertLocked(p *model.Person) error {
	if _, taken := m.byHandle[p.Handle]; taken {
		return errs.ErrAlreadyExists
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	c := *p
	m.people[p.ID] = &c
	m.byHandle[p.Handle] = p.ID
	m.creates.Add(1)
	return nil
}

func (m *memStore) Update(_ context.Context, p *model.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.people[p.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if id, taken := m.byHandle[p.Handle]; taken && id != p.ID {
		return errs.ErrAlreadyExists
	}
	delete(m.byHandle, old.Handle)
	p.UpdatedAt = time.Now()
	c := *p
	c.OwnerID, c.Local = old.OwnerID, old.Local
	m.people[p.ID] = &c
	m.byHandle[p.Handle] = p.ID
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[id]
	if !ok {
		return errs.ErrNotFound
	}
	delete(m.byHandle, p.Handle)
	delete(m.people, id)
	return nil
}

func (m *memStore) CreateWithPerson(_ context.Context, u *model.User, p *model.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if strings.EqualFold(other.Username, u.Username) {
			return errs.ErrAlreadyExists
		}
	}
	p.OwnerID, p.Local = u.ID, true
	if err := m.insertLocked(p); err != nil {
		return err
	}
	u.PersonID = p.ID
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *memStore) GetByPersonID(_ context.Context, personID uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PersonID == personID {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

// userRepo serves UserRepository.GetByID, whose name clashes with the person lookup.
type userRepo struct{ *memStore }

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memStore) CreatePost(_ context.Context, p *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[p.AuthorID]; !ok {
		return errs.ErrNotFound
	}
	c := *p
	m.posts[p.ID] = &c
	return nil
}

func (m *memStore) GetPost(_ context.Context, id uuid.UUID) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *memStore) CreateComment(_ context.Context, c *model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[c.PostID]; !ok {
		return errs.ErrNotFound
	}
	if _, ok := m.people[c.AuthorID]; !ok {
		return errs.ErrNotFound
	}
	cp := *c
	m.comments[c.ID] = &cp
	return nil
}

func (m *memStore) CountPosts(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.posts)), nil
}

func (m *memStore) CountComments(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.comments)), nil
}

func (m *memStore) Add(_ context.Context, c *model.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uuid.UUID{c.UserID, c.PersonID}
	if _, ok := m.contacts[key]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := m.people[c.PersonID]; !ok {
		return errs.ErrNotFound
	}
	cp := *c
	m.contacts[key] = &cp
	return nil
}

func (m *memStore) Remove(_ context.Context, userID, personID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uuid.UUID{userID, personID}
	if _, ok := m.contacts[key]; !ok {
		return errs.ErrNotFound
	}
	delete(m.contacts, key)
	return nil
}

func (m *memStore) CountReferencing(_ context.Context, personID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refsLocked(personID), nil
}

func (m *memStore) refsLocked(personID uuid.UUID) int64 {
	var n int64
	for k := range m.contacts {
		if k[1] == personID {
			n++
		}
	}
	return n
}

func (m *memStore) DestroyPerson(_ context.Context, personID uuid.UUID, force bool) (model.DestroyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep := model.DestroyReport{PersonID: personID}
	if m.destroyErr != nil {
		return rep, m.destroyErr
	}
	p, ok := m.people[personID]
	if !ok {
		return rep, errs.ErrNotFound
	}
	for id, post := range m.posts {
		if post.AuthorID != personID {
			continue
		}
		for cid, c := range m.comments {
			if c.PostID == id {
				delete(m.comments, cid)
				rep.CommentsRemoved++
			}
		}
		delete(m.posts, id)
		rep.PostsRemoved++
	}
	if refs := m.refsLocked(personID); refs > 0 {
		if !force {
			rep.Retained = true
			return rep, nil
		}
		for k := range m.contacts {
			if k[1] == personID {
				delete(m.contacts, k)
				rep.ContactsRemoved++
			}
		}
	}
	if p.OwnerID != uuid.Nil {
		for k := range m.contacts {
			if k[0] == p.OwnerID {
				delete(m.contacts, k)
				rep.ContactsRemoved++
			}
		}
	}
	for _, c := range m.comments {
		if c.AuthorID == personID {
			c.AuthorID = uuid.Nil
			rep.CommentsKept++
		}
	}
	delete(m.byHandle, p.Handle)
	delete(m.people, personID)
	if p.OwnerID != uuid.Nil {
		delete(m.users, p.OwnerID)
		rep.UserRemoved = true
	}
	return rep, nil
}

func (m *memStore) PruneOrphan(_ context.Context, personID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[personID]
	if !ok {
		return false, errs.ErrNotFound
	}
	if p.Local || m.refsLocked(personID) > 0 {
		return false, nil
	}
	for _, post := range m.posts {
		if post.AuthorID == personID {
			return false, nil
		}
	}
	for _, c := range m.comments {
		if c.AuthorID == personID {
			return false, nil
		}
	}
	delete(m.byHandle, p.Handle)
	delete(m.people, personID)
	return true, nil
}

func (m *memStore) handleCount(h handle.Handle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.people {
		if p.Handle == h {
			n++
		}
	}
	return n
}

// fakeGuard records hold-down calls.
type fakeGuard struct {
	mu        sync.Mutex
	held      bool
	holdAfter int
	allowErr  error
	failures  int
	successes int
}

func (g *fakeGuard) Allow(context.Context, string) (bool, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.allowErr != nil {
		return false, 0, g.allowErr
	}
	if g.held {
		return false, time.Minute, nil
	}
	return true, 0, nil
}

func (g *fakeGuard) Success(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successes++
	g.failures = 0
	return nil
}

func (g *fakeGuard) Failure(context.Context, string) (bool, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.holdAfter > 0 && g.failures >= g.holdAfter {
		g.held = true
		return true, time.Minute, nil
	}
	return false, 0, nil
}

func (g *fakeGuard) counts() (failures, successes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures, g.successes
}

var errBoom = errors.New("boom")
