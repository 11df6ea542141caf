package store

import (
	"context"
	"errors"

	"clinsum/pkg/domain"
)

// ErrDuplicateEmail is returned by SaveUser when another user already holds
// the email. The email column's uniqueness is enforced at the storage layer,
// so a racing second signup fails here rather than slipping past the
// application's existence check.
var ErrDuplicateEmail = errors.New("email already in use")

// Store defines persistence operations for users and reports. It is the only
// component allowed to touch report records; callers go through the
// application core.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// reports
	SaveReport(domain.Report) error
	GetReport(id string) (domain.Report, bool, error)
	SetReportStatus(id string, status domain.ReportStatus) error
	ListReports(ownerID string, page, limit int) (domain.Page, error)
}

// Pinger is an optional capability: stores backed by an external connection
// expose a health check run before the process starts serving traffic.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is an optional capability for stores holding a connection that must
// be torn down on shutdown.
type Closer interface {
	Close() error
}
