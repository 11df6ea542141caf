package domain

import "time"

type ReportStatus string

const (
	StatusPending   ReportStatus = "pending"
	StatusCompleted ReportStatus = "completed"
	StatusFailed    ReportStatus = "failed"
)

type SourceType string

const (
	SourceText  SourceType = "text"
	SourceImage SourceType = "image"
	SourcePDF   SourceType = "pdf"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Report is a persisted unit of submitted content plus its derived text
// and summary. OwnerID is empty for anonymous submissions.
type Report struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"ownerId,omitempty"`
	SourceType    SourceType   `json:"sourceType"`
	RawAssetKey   string       `json:"-"`
	ExtractedText string       `json:"extractedText,omitempty"`
	OriginalText  string       `json:"originalText"`
	SummaryText   string       `json:"summaryText,omitempty"`
	Status        ReportStatus `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Page is one page of a report listing.
type Page struct {
	Items []Report `json:"items"`
	Total int64    `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
}

// Identity is the claim payload carried by session tokens. It contains
// no secrets.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// IdentityOf projects a user onto its token payload.
func IdentityOf(u User) Identity {
	return Identity{ID: u.ID, Email: u.Email, Name: u.Name}
}
