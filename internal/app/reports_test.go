package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"clinsum/pkg/domain"
)

func TestCreateTextReport(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.app.CreateTextReport(context.Background(), "user-1", "  CBC within normal limits.  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report.ID == "" {
		t.Fatal("expected a generated id")
	}
	if report.OriginalText != "CBC within normal limits." {
		t.Fatalf("text not trimmed: %q", report.OriginalText)
	}
	if report.SourceType != domain.SourceText || report.Status != domain.StatusPending {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.OwnerID != "user-1" {
		t.Fatalf("owner = %q", report.OwnerID)
	}

	stored, found, err := env.store.GetReport(report.ID)
	if err != nil || !found {
		t.Fatalf("report not persisted: %v", err)
	}
	if stored.OriginalText != report.OriginalText {
		t.Fatal("persisted text differs")
	}
}

func TestCreateTextReportRejectsEmptyAndOversize(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.app.CreateTextReport(context.Background(), "", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank text: got %v, want ErrInvalidInput", err)
	}

	long := strings.Repeat("a", defaultMaxTextChars+1)
	if _, err := env.app.CreateTextReport(context.Background(), "", long); !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("oversize text: got %v, want ErrTextTooLong", err)
	}

	// Exactly at the limit is accepted.
	if _, err := env.app.CreateTextReport(context.Background(), "", strings.Repeat("a", defaultMaxTextChars)); err != nil {
		t.Fatalf("at-limit text rejected: %v", err)
	}
}

func TestCreateImageReportRunsOCR(t *testing.T) {
	env := newTestEnv(t)
	env.ocr.text = "  Hemoglobin 13.5 g/dL  "

	report, err := env.app.CreateImageReport(context.Background(), "user-1", "scan.png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report.SourceType != domain.SourceImage {
		t.Fatalf("source type = %q", report.SourceType)
	}
	if report.ExtractedText != "Hemoglobin 13.5 g/dL" || report.OriginalText != report.ExtractedText {
		t.Fatalf("unexpected text: %+v", report)
	}
	if report.RawAssetKey == "" {
		t.Fatal("expected a stored asset key")
	}
	if env.objects.Len() != 1 {
		t.Fatalf("object count = %d, want 1", env.objects.Len())
	}
}

func TestCreateImageReportEngineFailureLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t)
	env.ocr.err = errors.New("tesseract exploded")

	_, err := env.app.CreateImageReport(context.Background(), "user-1", "scan.png", []byte("img"))
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("got %v, want ErrExtractionFailed", err)
	}
	if env.objects.Len() != 0 {
		t.Fatalf("orphan asset left behind: %d objects", env.objects.Len())
	}
	page, err := env.store.ListReports("user-1", 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("report was persisted despite OCR failure: %+v", page)
	}
}

func TestCreateImageReportEmptyRecognitionStillCreates(t *testing.T) {
	env := newTestEnv(t)
	env.ocr.text = ""

	report, err := env.app.CreateImageReport(context.Background(), "user-1", "blank.jpg", []byte("img"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report.OriginalText != "" {
		t.Fatalf("text = %q, want empty", report.OriginalText)
	}
}

func TestCreateImageReportRejectsUnknownExtension(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.app.CreateImageReport(context.Background(), "", "notes.txt", []byte("x"))
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("got %v, want ErrUnsupportedSourceType", err)
	}
	if env.objects.Len() != 0 {
		t.Fatal("nothing should be uploaded for a rejected file")
	}
}

func TestCreatePDFReportRejectsWrongExtension(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.CreatePDFReport(context.Background(), "", "scan.png", []byte("x"))
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("got %v, want ErrUnsupportedSourceType", err)
	}
}

func TestCreatePDFReportUnreadableFileCleansUp(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.app.CreatePDFReport(context.Background(), "user-1", "broken.pdf", []byte("this is not a pdf"))
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("got %v, want ErrExtractionFailed", err)
	}
	if env.objects.Len() != 0 {
		t.Fatalf("orphan asset left behind: %d objects", env.objects.Len())
	}
}

func TestGetReportVisibility(t *testing.T) {
	env := newTestEnv(t)
	owned, err := env.app.CreateTextReport(context.Background(), "user-1", "owned report")
	if err != nil {
		t.Fatalf("create owned: %v", err)
	}
	anon, err := env.app.CreateTextReport(context.Background(), "", "anonymous report")
	if err != nil {
		t.Fatalf("create anonymous: %v", err)
	}

	if _, err := env.app.GetReport("user-1", owned.ID); err != nil {
		t.Fatalf("owner denied own report: %v", err)
	}
	if _, err := env.app.GetReport("user-2", owned.ID); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("foreign report: got %v, want ErrReportNotFound", err)
	}
	if _, err := env.app.GetReport("user-2", anon.ID); err != nil {
		t.Fatalf("anonymous report should be reachable by id: %v", err)
	}
	if _, err := env.app.GetReport("user-1", "no-such-id"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("missing report: got %v, want ErrReportNotFound", err)
	}
}

func TestSummarizeCompletesReport(t *testing.T) {
	env := newTestEnv(t)
	env.summarizer.out = "**Findings**\nAll clear."

	report, err := env.app.CreateTextReport(context.Background(), "user-1", "WBC 6.1, RBC 4.8")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := env.app.Summarize(context.Background(), "user-1", report.ID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.SummaryText != "**Findings**\nAll clear." {
		t.Fatalf("summary = %q", got.SummaryText)
	}
	if env.summarizer.lastText != "WBC 6.1, RBC 4.8" {
		t.Fatalf("summarizer got %q", env.summarizer.lastText)
	}

	stored, _, _ := env.store.GetReport(report.ID)
	if stored.Status != domain.StatusCompleted || stored.SummaryText == "" {
		t.Fatalf("persisted report not updated: %+v", stored)
	}
}

func TestSummarizeEmptyReportLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.ocr.text = ""
	report, err := env.app.CreateImageReport(context.Background(), "user-1", "blank.png", []byte("img"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.app.Summarize(context.Background(), "user-1", report.ID)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("got %v, want ErrNoContent", err)
	}
	if env.summarizer.calls != 0 {
		t.Fatal("summarizer must not be called for empty reports")
	}
	stored, _, _ := env.store.GetReport(report.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("status changed to %q", stored.Status)
	}
}

func TestSummarizeFailureMarksFailedAndKeepsOldSummary(t *testing.T) {
	env := newTestEnv(t)
	env.summarizer.out = "first summary"

	report, err := env.app.CreateTextReport(context.Background(), "user-1", "some findings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.app.Summarize(context.Background(), "user-1", report.ID); err != nil {
		t.Fatalf("first summarize: %v", err)
	}

	env.summarizer.err = errors.New("model unavailable")
	_, err = env.app.Summarize(context.Background(), "user-1", report.ID)
	if !errors.Is(err, ErrSummarizationFailed) {
		t.Fatalf("got %v, want ErrSummarizationFailed", err)
	}

	stored, _, _ := env.store.GetReport(report.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %q, want failed", stored.Status)
	}
	if stored.SummaryText != "first summary" {
		t.Fatalf("earlier summary lost: %q", stored.SummaryText)
	}
}

// A caller that disconnects mid-summarization must not abort the work or
// leave the report persisted as failed; the request runs to completion.
func TestSummarizeRunsToCompletionAfterCallerCancel(t *testing.T) {
	env := newTestEnv(t)
	env.summarizer.out = "**Findings**\nStill delivered."

	report, err := env.app.CreateTextReport(context.Background(), "user-1", "findings to keep")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := env.app.Summarize(ctx, "user-1", report.ID)
	if err != nil {
		t.Fatalf("summarize with cancelled caller: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.SummaryText == "" {
		t.Fatalf("unexpected report: %+v", got)
	}

	stored, _, _ := env.store.GetReport(report.ID)
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("persisted status = %q, want completed", stored.Status)
	}
}

func TestCreateImageReportSurvivesCallerCancel(t *testing.T) {
	env := newTestEnv(t)
	env.ocr.text = "recognized anyway"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := env.app.CreateImageReport(ctx, "user-1", "scan.png", []byte("img"))
	if err != nil {
		t.Fatalf("create with cancelled caller: %v", err)
	}
	if report.OriginalText != "recognized anyway" {
		t.Fatalf("text = %q", report.OriginalText)
	}
}

func TestSummarizeOverwritesOnRetry(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.app.CreateTextReport(context.Background(), "user-1", "evolving findings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.summarizer.out = "first take"
	if _, err := env.app.Summarize(context.Background(), "user-1", report.ID); err != nil {
		t.Fatalf("first summarize: %v", err)
	}
	env.summarizer.out = "second take"
	got, err := env.app.Summarize(context.Background(), "user-1", report.ID)
	if err != nil {
		t.Fatalf("second summarize: %v", err)
	}
	if got.SummaryText != "second take" {
		t.Fatalf("summary = %q, want the latest result", got.SummaryText)
	}
}

func TestSummarizeOtherUsersReport(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.app.CreateTextReport(context.Background(), "user-1", "private findings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.app.Summarize(context.Background(), "user-2", report.ID); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("got %v, want ErrReportNotFound", err)
	}
	if env.summarizer.calls != 0 {
		t.Fatal("summarizer must not run for invisible reports")
	}
}

func TestAssetURL(t *testing.T) {
	env := newTestEnv(t)

	image, err := env.app.CreateImageReport(context.Background(), "user-1", "scan.png", []byte("img"))
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	url, err := env.app.AssetURL(context.Background(), "user-1", image.ID)
	if err != nil {
		t.Fatalf("asset url: %v", err)
	}
	if !strings.HasPrefix(url, "memory://reports/"+image.ID+"/") {
		t.Fatalf("unexpected url %q", url)
	}

	text, err := env.app.CreateTextReport(context.Background(), "user-1", "pasted")
	if err != nil {
		t.Fatalf("create text: %v", err)
	}
	if _, err := env.app.AssetURL(context.Background(), "user-1", text.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("text report asset: got %v, want ErrInvalidInput", err)
	}

	if _, err := env.app.AssetURL(context.Background(), "user-2", image.ID); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("foreign asset: got %v, want ErrReportNotFound", err)
	}
}

func TestAssetKeySanitizesFilenames(t *testing.T) {
	cases := []struct{ in, want string }{
		{"scan.png", "reports/r1/scan.png"},
		{"../../etc/passwd", "reports/r1/passwd"},
		{`C:\Users\me\scan 1.jpg`, "reports/r1/scan_1.jpg"},
		{"", "reports/r1/upload"},
	}
	for _, tc := range cases {
		if got := assetKey("r1", tc.in); got != tc.want {
			t.Errorf("assetKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
