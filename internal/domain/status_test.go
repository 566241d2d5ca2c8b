package domain

import (
	"errors"
	"testing"
)

func TestEnsureCycleTransition(t *testing.T) {
	tests := []struct {
		from, to CycleStatus
		ok       bool
	}{
		{CycleActive, CyclePaused, true},
		{CycleActive, CycleSubmitted, true},
		{CycleActive, CycleCancelled, true},
		{CyclePaused, CycleActive, true},
		{CyclePaused, CycleSubmitted, false},
		{CycleSubmitted, CycleConfirmed, true},
		{CycleSubmitted, CycleActive, false},
		{CycleConfirmed, CycleCompleted, true},
		{CycleCompleted, CycleActive, false},
		{CycleCancelled, CycleActive, false},
		{CycleCancelled, CycleCancelled, true}, // same-state is a no-op
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.to), func(t *testing.T) {
			err := EnsureCycleTransition(tt.from, tt.to)
			if tt.ok && err != nil {
				t.Errorf("EnsureCycleTransition(%q, %q) = %v, want nil", tt.from, tt.to, err)
			}
			if !tt.ok {
				var ite *InvalidTransitionError
				if !errors.As(err, &ite) {
					t.Errorf("EnsureCycleTransition(%q, %q) = %v, want InvalidTransitionError", tt.from, tt.to, err)
				}
			}
		})
	}
}

func TestEnsureStepTransition(t *testing.T) {
	tests := []struct {
		from, to StepStatus
		ok       bool
	}{
		{StepPending, StepInProgress, true},
		{StepPending, StepWaitingForHuman, true},
		{StepPending, StepCompleted, false},
		{StepInProgress, StepCompleted, true},
		{StepInProgress, StepFailed, true},
		{StepWaitingForHuman, StepCompleted, true},
		{StepWaitingForHuman, StepFailed, true},
		{StepFailed, StepPending, true}, // explicit retry by caller
		{StepCompleted, StepInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.to), func(t *testing.T) {
			err := EnsureStepTransition(tt.from, tt.to)
			if tt.ok != (err == nil) {
				t.Errorf("EnsureStepTransition(%q, %q) = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
			}
		})
	}
}

func TestBlocksResume(t *testing.T) {
	tests := []struct {
		status TaskStatus
		blocks bool
	}{
		{TaskPending, true},
		{TaskInProgress, true},
		{TaskEscalated, true},
		{TaskCompleted, false},
		{TaskCancelled, false},
	}
	for _, tt := range tests {
		if got := BlocksResume(tt.status); got != tt.blocks {
			t.Errorf("BlocksResume(%q) = %v, want %v", tt.status, got, tt.blocks)
		}
	}
}

func TestPhaseOrdering(t *testing.T) {
	if len(PhaseOrder) != 9 {
		t.Fatalf("expected nine phases, got %d", len(PhaseOrder))
	}
	if PhaseOrder[0] != PhaseRegulatoryIntelligence || PhaseOrder[8] != PhaseAttestation {
		t.Fatalf("unexpected phase ordering: %v", PhaseOrder)
	}
	if got := NextPhase(PhaseDocumentation); got != PhaseAttestation {
		t.Errorf("NextPhase(documentation) = %q", got)
	}
	if got := NextPhase(PhaseAttestation); got != "" {
		t.Errorf("NextPhase(attestation) = %q, want empty", got)
	}
	if PhaseIndex(PhaseCDEIdentification) != 2 {
		t.Errorf("PhaseIndex(cde_identification) = %d", PhaseIndex(PhaseCDEIdentification))
	}
}
