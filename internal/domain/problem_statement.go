package domain

import (
	"strings"
	"time"
)

// MinProblemStatementLength is the minimum number of characters in a problem statement.
const MinProblemStatementLength = 140

// Attachment is metadata for a file stored outside the core.
type Attachment struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ProblemStatement describes the customer's problem.
type ProblemStatement struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ProblemStatementInput holds write-time values for a problem statement.
type ProblemStatementInput struct {
	Content     string
	Attachments []Attachment
}

// NewProblemStatement validates in and builds a ProblemStatement.
func NewProblemStatement(in ProblemStatementInput, now time.Time) (ProblemStatement, error) {
	in.Content = strings.TrimSpace(in.Content)
	violations := ValidateProblemStatement(in.Content)
	attachments := make([]Attachment, 0, len(in.Attachments))
	for _, raw := range in.Attachments {
		a := normalizeAttachment(raw)
		violations = append(violations, validateAttachment(a)...)
		attachments = append(attachments, a)
	}
	if err := NewValidationError(violations); err != nil {
		return ProblemStatement{}, err
	}
	if len(attachments) == 0 {
		attachments = nil
	}
	return ProblemStatement{
		Content:     in.Content,
		Attachments: attachments,
		CreatedAt:   now.UTC(),
	}, nil
}

func normalizeAttachment(a Attachment) Attachment {
	a.ID = strings.TrimSpace(a.ID)
	a.FileName = strings.TrimSpace(a.FileName)
	a.ContentType = strings.ToLower(strings.TrimSpace(a.ContentType))
	a.URL = strings.TrimSpace(a.URL)
	a.UploadedBy = strings.TrimSpace(a.UploadedBy)
	a.UploadedAt = a.UploadedAt.UTC()
	return a
}

func validateAttachment(a Attachment) []string {
	var violations []string
	if a.ID == "" {
		violations = append(violations, "attachment id is required")
	}
	if a.FileName == "" {
		violations = append(violations, "attachment file name is required")
	}
	if a.SizeBytes < 0 {
		violations = append(violations, "attachment size must not be negative")
	}
	return violations
}

func (p ProblemStatement) clone() *ProblemStatement {
	out := p
	out.Attachments = append([]Attachment(nil), p.Attachments...)
	return &out
}
