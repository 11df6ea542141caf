package app

import "errors"

var (
	// ErrInvalidCredentials is returned for both unknown email and wrong
	// password. The shared message prevents account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	ErrEmailAlreadyExists = errors.New("email already registered")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidToken       = errors.New("invalid or expired token")

	ErrTextTooLong           = errors.New("text exceeds the maximum length")
	ErrUnsupportedSourceType = errors.New("unsupported source type")
	ErrReportNotFound        = errors.New("report not found")

	// ErrNoContent rejects summarization of a report whose original text is
	// empty; the report itself is left untouched.
	ErrNoContent = errors.New("no text available to summarize")

	// Collaborator failures. Handlers surface these as a generic 500; the
	// wrapped cause is logged, never sent to the client.
	ErrExtractionFailed    = errors.New("failed to extract text")
	ErrSummarizationFailed = errors.New("failed to generate summary")
)
