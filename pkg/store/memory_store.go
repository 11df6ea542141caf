package store

import (
	"sync"

	"clinsum/pkg/domain"
)

// MemoryStore keeps users and reports in-process. Single-instance only; used
// by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	email   map[string]string // email -> user ID
	reports map[string]domain.Report
	order   []string // report IDs in insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		email:   make(map[string]string),
		reports: make(map[string]domain.Report),
	}
}

// SaveUser stores or replaces a user record. The email must not belong to
// a different user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.email[u.Email]; ok && owner != u.ID {
		return ErrDuplicateEmail
	}
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveReport stores or replaces a report and tracks insertion order.
func (m *MemoryStore) SaveReport(r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reports[r.ID]; !exists {
		m.order = append(m.order, r.ID)
	}
	m.reports[r.ID] = r
	return nil
}

// GetReport retrieves a report.
func (m *MemoryStore) GetReport(id string) (domain.Report, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	return r, ok, nil
}

// SetReportStatus updates status only.
func (m *MemoryStore) SetReportStatus(id string, status domain.ReportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil
	}
	r.Status = status
	m.reports[id] = r
	return nil
}

// ListReports returns one page of an owner's reports, newest first.
func (m *MemoryStore) ListReports(ownerID string, page, limit int) (domain.Page, error) {
	page, limit = NormalizePage(page, limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	owned := make([]domain.Report, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if r, ok := m.reports[m.order[i]]; ok && r.OwnerID == ownerID {
			owned = append(owned, r)
		}
	}
	total := int64(len(owned))
	start := (page - 1) * limit
	if start > len(owned) {
		start = len(owned)
	}
	end := start + limit
	if end > len(owned) {
		end = len(owned)
	}
	return domain.Page{Items: owned[start:end], Total: total, Page: page, Limit: limit}, nil
}
