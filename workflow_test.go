package tandem

import (
	"testing"
)

func TestConditionMet(t *testing.T) {
	outputs := []AgentOutput{
		{AgentID: "a", Content: "the quick brown fox", Confidence: 0.7},
	}
	tests := []struct {
		name    string
		cond    Condition
		outputs []AgentOutput
		want    bool
	}{
		{"always", Always(), outputs, true},
		{"zero value passes", Condition{}, nil, true},
		{"confidence above met", ConfidenceAbove(0.6), outputs, true},
		{"confidence above equal", ConfidenceAbove(0.7), outputs, true},
		{"confidence above unmet", ConfidenceAbove(0.8), outputs, false},
		{"confidence above no outputs", ConfidenceAbove(0.9), nil, true},
		{"output contains met", OutputContains("brown"), outputs, true},
		{"output contains unmet", OutputContains("lazy"), outputs, false},
		{"output contains no outputs", OutputContains("anything"), nil, true},
		{"previous success met", PreviousSuccess(), outputs, true},
		{"previous success no outputs", PreviousSuccess(), nil, false},
		{"custom passes", CustomCondition("external"), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.met(tt.outputs); got != tt.want {
				t.Errorf("met = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkflowValidate(t *testing.T) {
	tests := []struct {
		name    string
		wf      Workflow
		wantErr string
	}{
		{
			name: "valid",
			wf: Workflow{
				ID: "wf",
				Steps: []WorkflowStep{
					{ID: "a", AgentID: "x"},
					{ID: "b", AgentID: "y", DependsOn: []string{"a"}},
				},
			},
		},
		{
			name:    "no id",
			wf:      Workflow{Steps: []WorkflowStep{{ID: "a", AgentID: "x"}}},
			wantErr: "invalid workflow: workflow has no id",
		},
		{
			name:    "no steps",
			wf:      Workflow{ID: "wf"},
			wantErr: `invalid workflow: workflow "wf" has no steps`,
		},
		{
			name: "step without id",
			wf: Workflow{
				ID:    "wf",
				Steps: []WorkflowStep{{AgentID: "x"}},
			},
			wantErr: "invalid workflow: step 0 has no id",
		},
		{
			name: "step without agent",
			wf: Workflow{
				ID:    "wf",
				Steps: []WorkflowStep{{ID: "a"}},
			},
			wantErr: `invalid workflow: step "a" has no agent id`,
		},
		{
			name: "duplicate step id",
			wf: Workflow{
				ID: "wf",
				Steps: []WorkflowStep{
					{ID: "a", AgentID: "x"},
					{ID: "a", AgentID: "y"},
				},
			},
			wantErr: `invalid workflow: duplicate step id "a"`,
		},
		{
			name: "dependency on later step",
			wf: Workflow{
				ID: "wf",
				Steps: []WorkflowStep{
					{ID: "a", AgentID: "x", DependsOn: []string{"b"}},
					{ID: "b", AgentID: "y"},
				},
			},
			wantErr: `invalid workflow: step "a" depends on "b" which is not an earlier step`,
		},
		{
			name: "dependency on unknown step",
			wf: Workflow{
				ID: "wf",
				Steps: []WorkflowStep{
					{ID: "a", AgentID: "x", DependsOn: []string{"ghost"}},
				},
			},
			wantErr: `invalid workflow: step "a" depends on "ghost" which is not an earlier step`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wf.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestWorkflowStateTerminal(t *testing.T) {
	terminal := []WorkflowState{StateCompleted, StateFailed, StateCancelled}
	for _, s := range terminal {
		if !s.terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []WorkflowState{StatePending, StateRunning, StatePaused}
	for _, s := range live {
		if s.terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
