package domain

import "fmt"

// InvalidTransitionError reports an illegal state-machine move. Message, when
// set, overrides the generic text; the artifact lifecycle uses it to keep its
// exact contract wording.
type InvalidTransitionError struct {
	Entity  string
	From    string
	To      string
	Message string
}

func (e *InvalidTransitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// LockedArtifactError reports a mutation attempt on a submitted artifact.
type LockedArtifactError struct {
	ArtifactID string
}

func (e *LockedArtifactError) Error() string {
	return fmt.Sprintf("artifact %s is locked and cannot be modified", e.ArtifactID)
}
