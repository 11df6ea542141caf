package app

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"clinsum/pkg/domain"
	"clinsum/pkg/extract"
)

// assetURLExpiry bounds how long a presigned download link stays valid.
const assetURLExpiry = 15 * time.Minute

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// CreateTextReport stores a pasted report body. ownerID may be empty for
// anonymous submissions.
func (a *App) CreateTextReport(ctx context.Context, ownerID, text string) (domain.Report, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Report{}, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > a.maxTextChars {
		return domain.Report{}, ErrTextTooLong
	}
	report := domain.Report{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		SourceType:   domain.SourceText,
		OriginalText: text,
		Status:       domain.StatusPending,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveReport(report); err != nil {
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// CreateImageReport stores an uploaded image, runs OCR on it, and creates
// a report carrying the recognized text. An OCR engine failure aborts the
// whole operation; an empty recognition result does not.
func (a *App) CreateImageReport(ctx context.Context, ownerID, filename string, data []byte) (domain.Report, error) {
	// Upload and OCR finish even if the requester goes away; the OCR
	// engine's own timeout bounds the call.
	ctx = context.WithoutCancel(ctx)
	if len(data) == 0 {
		return domain.Report{}, fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}
	ext := strings.ToLower(path.Ext(filename))
	contentType, ok := imageExtensions[ext]
	if !ok {
		return domain.Report{}, fmt.Errorf("%w: %q is not a supported image", ErrUnsupportedSourceType, ext)
	}

	id := uuid.NewString()
	key := assetKey(id, filename)
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return domain.Report{}, fmt.Errorf("store upload: %w", err)
	}

	raw, err := a.ocr.Extract(ctx, data)
	if err != nil {
		// No orphan assets: a report that was never created must not
		// leave its upload behind.
		_ = a.objects.Delete(ctx, key)
		return domain.Report{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	text := a.boundExtracted(extract.NormalizeText(raw))

	report := domain.Report{
		ID:            id,
		OwnerID:       ownerID,
		SourceType:    domain.SourceImage,
		RawAssetKey:   key,
		ExtractedText: text,
		OriginalText:  text,
		Status:        domain.StatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := a.store.SaveReport(report); err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// CreatePDFReport stores an uploaded PDF and creates a report from its
// text layer. A PDF with no extractable text aborts the operation.
func (a *App) CreatePDFReport(ctx context.Context, ownerID, filename string, data []byte) (domain.Report, error) {
	ctx = context.WithoutCancel(ctx)
	if len(data) == 0 {
		return domain.Report{}, fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}
	if strings.ToLower(path.Ext(filename)) != ".pdf" {
		return domain.Report{}, fmt.Errorf("%w: expected a .pdf file", ErrUnsupportedSourceType)
	}

	id := uuid.NewString()
	key := assetKey(id, filename)
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return domain.Report{}, fmt.Errorf("store upload: %w", err)
	}

	raw, err := extract.PDFText(data)
	if err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.Report{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	text := a.boundExtracted(extract.NormalizeText(raw))

	report := domain.Report{
		ID:            id,
		OwnerID:       ownerID,
		SourceType:    domain.SourcePDF,
		RawAssetKey:   key,
		ExtractedText: text,
		OriginalText:  text,
		Status:        domain.StatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := a.store.SaveReport(report); err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// GetReport loads a report visible to the caller. Reports owned by a
// different account surface as not found rather than forbidden, so report
// IDs leak no existence information.
func (a *App) GetReport(ownerID, id string) (domain.Report, error) {
	report, found, err := a.store.GetReport(id)
	if err != nil {
		return domain.Report{}, fmt.Errorf("load report: %w", err)
	}
	if !found || !visibleTo(report, ownerID) {
		return domain.Report{}, ErrReportNotFound
	}
	return report, nil
}

// ListReports pages through the caller's reports, newest first.
func (a *App) ListReports(ownerID string, page, limit int) (domain.Page, error) {
	result, err := a.store.ListReports(ownerID, page, limit)
	if err != nil {
		return domain.Page{}, fmt.Errorf("list reports: %w", err)
	}
	return result, nil
}

// Summarize runs the report through the clinical summarizer.
//
// The report is marked pending before the model call and either completed
// or failed after it. On failure the previous summary text, if any, is
// retained so a transient model error never destroys an earlier result.
// The work runs to completion once started: a caller disconnecting must
// not cancel the model call or turn into a persisted failed state, so the
// caller's cancellation is detached here. The collaborator's own timeout
// still bounds the call.
func (a *App) Summarize(ctx context.Context, ownerID, id string) (domain.Report, error) {
	ctx = context.WithoutCancel(ctx)
	report, err := a.GetReport(ownerID, id)
	if err != nil {
		return domain.Report{}, err
	}
	if strings.TrimSpace(report.OriginalText) == "" {
		return domain.Report{}, ErrNoContent
	}

	if err := a.store.SetReportStatus(report.ID, domain.StatusPending); err != nil {
		return domain.Report{}, fmt.Errorf("mark pending: %w", err)
	}
	report.Status = domain.StatusPending

	summary, err := a.summarizer.Summarize(ctx, report.OriginalText)
	if err != nil {
		if statusErr := a.store.SetReportStatus(report.ID, domain.StatusFailed); statusErr != nil {
			return domain.Report{}, fmt.Errorf("mark failed: %w", statusErr)
		}
		return domain.Report{}, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	report.SummaryText = summary
	report.Status = domain.StatusCompleted
	report.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveReport(report); err != nil {
		return domain.Report{}, fmt.Errorf("save summary: %w", err)
	}
	return report, nil
}

// AssetURL presigns a short-lived download link for the report's raw
// upload. Text reports carry no asset.
func (a *App) AssetURL(ctx context.Context, ownerID, id string) (string, error) {
	report, err := a.GetReport(ownerID, id)
	if err != nil {
		return "", err
	}
	if report.RawAssetKey == "" {
		return "", fmt.Errorf("%w: report has no stored asset", ErrInvalidInput)
	}
	url, err := a.objects.PresignGet(ctx, report.RawAssetKey, assetURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign asset: %w", err)
	}
	return url, nil
}

// visibleTo reports whether the caller may read the report. Anonymous
// reports are reachable by anyone holding the ID.
func visibleTo(r domain.Report, ownerID string) bool {
	return r.OwnerID == "" || r.OwnerID == ownerID
}

// boundExtracted caps extracted text at the storage limit. Unlike pasted
// text it is truncated rather than rejected; the uploader cannot shorten
// a scan.
func (a *App) boundExtracted(text string) string {
	if utf8.RuneCountInString(text) <= a.maxTextChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:a.maxTextChars])
}

// assetKey namespaces uploads per report so deleting a report can sweep
// its objects with a single prefix.
func assetKey(reportID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		base = "upload"
	}
	return "reports/" + reportID + "/" + base
}
