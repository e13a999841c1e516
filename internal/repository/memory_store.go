// internal/repository/memory_store.go
package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/javajoker/od-approval-backend/internal/models"
)

// MemoryStore keeps requests and users in process. It backs the "memory"
// database driver and the service tests.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*models.ODRequest
	users    map[uuid.UUID]*models.User
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[uuid.UUID]*models.ODRequest),
		users:    make(map[uuid.UUID]*models.User),
		now:      time.Now,
	}
}

// Requests exposes the store through the ODRequestStore interface.
func (m *MemoryStore) Requests() ODRequestStore { return memoryRequests{m} }

// Users exposes the store through the UserStore interface.
func (m *MemoryStore) Users() UserStore { return memoryUsers{m} }

type memoryRequests struct{ m *MemoryStore }

func (s memoryRequests) Create(ctx context.Context, req *models.ODRequest) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if _, exists := s.m.requests[req.ID]; exists {
		return ErrDuplicate
	}
	now := s.m.now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	s.m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s memoryRequests) GetByID(ctx context.Context, id uuid.UUID) (*models.ODRequest, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	req, ok := s.m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s memoryRequests) Update(ctx context.Context, id uuid.UUID, cond Condition, patch models.ODRequestPatch) (*models.ODRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	req, ok := s.m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !cond.Matches(req) {
		return nil, ErrConditionFailed
	}
	patch.Apply(req)
	req.UpdatedAt = s.m.now()
	return cloneRequest(req), nil
}

func (s memoryRequests) Find(ctx context.Context, filter ODRequestFilter) ([]models.ODRequest, int64, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	var matched []models.ODRequest
	for _, req := range s.m.requests {
		if filter.StudentID != nil && req.StudentID != *filter.StudentID {
			continue
		}
		if filter.ClassAdvisor != nil && req.ClassAdvisor != *filter.ClassAdvisor {
			continue
		}
		if filter.Department != "" && req.Department != filter.Department {
			continue
		}
		cond := Condition{Statuses: filter.Statuses, ChangedBefore: filter.ChangedBefore}
		if !cond.Matches(req) {
			continue
		}
		matched = append(matched, *cloneRequest(req))
	}

	sort.Slice(matched, func(i, j int) bool {
		if filter.SortByStatusChange {
			return matched[i].LastStatusChangeAt.After(matched[j].LastStatusChangeAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	return paginate(matched, filter.Offset, filter.Limit), total, nil
}

type memoryUsers struct{ m *MemoryStore }

func (s memoryUsers) Create(ctx context.Context, user *models.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	for _, existing := range s.m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicate
		}
		if user.RegisterNo != nil && existing.RegisterNo != nil && *existing.RegisterNo == *user.RegisterNo {
			return ErrDuplicate
		}
	}
	now := s.m.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	copied := *user
	s.m.users[user.ID] = &copied
	return nil
}

func (s memoryUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	user, ok := s.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s memoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s memoryUsers) GetByRegisterNo(ctx context.Context, registerNo string) (*models.User, error) {
	return s.first(func(u *models.User) bool {
		return u.RegisterNo != nil && *u.RegisterNo == registerNo
	})
}

func (s memoryUsers) FindOne(ctx context.Context, filter UserFilter) (*models.User, error) {
	users, err := s.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

func (s memoryUsers) Find(ctx context.Context, filter UserFilter) ([]models.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	ids := make(map[uuid.UUID]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		ids[id] = true
	}

	var users []models.User
	for _, u := range s.m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Department != "" && u.Department != filter.Department {
			continue
		}
		if filter.IDs != nil && !ids[u.ID] {
			continue
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s memoryUsers) Departments(ctx context.Context) ([]string, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	seen := make(map[string]bool)
	var departments []string
	for _, u := range s.m.users {
		if u.Department != "" && !seen[u.Department] {
			seen[u.Department] = true
			departments = append(departments, u.Department)
		}
	}
	sort.Strings(departments)
	return departments, nil
}

func (s memoryUsers) Delete(ctx context.Context, id uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.users, id)
	return nil
}

func (s memoryUsers) first(match func(*models.User) bool) (*models.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	for _, u := range s.m.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func cloneRequest(r *models.ODRequest) *models.ODRequest {
	c := *r
	c.NotifyFaculty = pq.StringArray(append([]string(nil), r.NotifyFaculty...))
	c.StartTime = cloneTime(r.StartTime)
	c.EndTime = cloneTime(r.EndTime)
	c.ProofVerifiedAt = cloneTime(r.ProofVerifiedAt)
	c.AdvisorApprovedAt = cloneTime(r.AdvisorApprovedAt)
	c.HODApprovedAt = cloneTime(r.HODApprovedAt)
	c.ForwardedToAdminAt = cloneTime(r.ForwardedToAdminAt)
	c.ForwardedToHODAt = cloneTime(r.ForwardedToHODAt)
	if r.ProofVerifiedBy != nil {
		id := *r.ProofVerifiedBy
		c.ProofVerifiedBy = &id
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func paginate(items []models.ODRequest, offset, limit int) []models.ODRequest {
	if offset >= len(items) {
		return []models.ODRequest{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
