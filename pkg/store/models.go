package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ReportModel struct {
	ID            string    `gorm:"primaryKey"`
	OwnerID       string    `gorm:"index"`
	SourceType    string    `gorm:"not null"`
	RawAssetKey   string
	ExtractedText string    `gorm:"type:text"`
	OriginalText  string    `gorm:"type:text"`
	SummaryText   string    `gorm:"type:text"`
	Status        string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}
