package app

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/opportune/internal/domain"
)

// DefaultMaxAttachmentBytes caps a single problem-statement attachment.
const DefaultMaxAttachmentBytes int64 = 20 << 20

// AttachmentPolicy limits attachment metadata accepted with a problem statement.
// An empty AllowedContentTypes accepts any content type.
type AttachmentPolicy struct {
	MaxBytes            int64
	AllowedContentTypes []string
}

// DefaultAttachmentPolicy returns the default attachment limits.
func DefaultAttachmentPolicy() AttachmentPolicy {
	return AttachmentPolicy{
		MaxBytes: DefaultMaxAttachmentBytes,
		AllowedContentTypes: []string{
			"application/pdf",
			"image/png",
			"image/jpeg",
			"text/plain",
			"text/markdown",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		},
	}
}

// Check reports every attachment that breaks the policy.
func (p AttachmentPolicy) Check(attachments []domain.Attachment) error {
	var violations []string
	for _, a := range attachments {
		name := strings.TrimSpace(a.FileName)
		if p.MaxBytes > 0 && a.SizeBytes > p.MaxBytes {
			violations = append(violations, fmt.Sprintf("attachment %q exceeds %d bytes", name, p.MaxBytes))
		}
		if len(p.AllowedContentTypes) == 0 {
			continue
		}
		contentType := strings.ToLower(strings.TrimSpace(a.ContentType))
		if !slices.Contains(p.AllowedContentTypes, contentType) {
			violations = append(violations, fmt.Sprintf("attachment %q has unsupported content type %q", name, contentType))
		}
	}
	return domain.NewValidationError(violations)
}
