package docagent

import (
	"context"
	"fmt"
	"log/slog"
)

// DocumentStore reads and writes whole document content on behalf of a user.
type DocumentStore interface {
	ReadContent(ctx context.Context, documentID, userID string) (string, error)
	WriteContent(ctx context.Context, documentID, userID, content string) error
}

// Identity is the caller on whose behalf the agent acts.
type Identity struct {
	UserID string `json:"user_id"`
}

// Verification is the result of re-reading a document after a mutating
// tool reported success.
type Verification struct {
	Confirmed   bool
	NewSnapshot string
	// Warning is appended to the tool's result text when the change is
	// not confirmed.
	Warning string
	Err     error
}

// MutationVerifier confirms claimed edits by comparing fresh document
// content against the last known snapshot.
type MutationVerifier struct {
	store    DocumentStore
	mutating map[string]bool
	logger   *slog.Logger
}

// NewMutationVerifier creates a verifier for the given mutating tool names.
func NewMutationVerifier(store DocumentStore, mutatingTools []string, logger *slog.Logger) *MutationVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MutationVerifier{
		store:    store,
		mutating: nameSet(mutatingTools),
		logger:   logger,
	}
}

// IsMutating reports whether toolName is expected to change the document.
func (v *MutationVerifier) IsMutating(toolName string) bool {
	return v.mutating[toolName]
}

// VerifyChange re-reads the document and reports whether it differs from
// prior. Tools outside the mutating set are never confirmed. Read failures
// are not confirmed and carry a warning.
func (v *MutationVerifier) VerifyChange(ctx context.Context, documentID string, identity Identity, prior, toolName string) Verification {
	if !v.IsMutating(toolName) {
		return Verification{NewSnapshot: prior}
	}

	current, err := v.store.ReadContent(ctx, documentID, identity.UserID)
	if err != nil {
		rerr := &VerificationReadError{DocumentID: documentID, Cause: err}
		v.logger.Warn("could not verify document change", "tool", toolName, "error", rerr)
		return Verification{
			NewSnapshot: prior,
			Warning:     fmt.Sprintf("\n\n[WARNING: the change reported by %s could not be verified (%v). Treat it as not applied.]", toolName, err),
			Err:         rerr,
		}
	}

	if current == prior {
		v.logger.Warn("tool reported success but document is unchanged", "tool", toolName)
		return Verification{
			NewSnapshot: prior,
			Warning:     fmt.Sprintf("\n\n[WARNING: %s reported success but the document content did not change. The edit did not take effect; re-read the target lines and try again.]", toolName),
		}
	}

	return Verification{Confirmed: true, NewSnapshot: current}
}
