package engine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []LifecycleState
		wantErr bool
	}{
		{name: "create", path: []LifecycleState{StateCreating, StateConverging, StateReporting, StateDone}},
		{name: "delete absent", path: []LifecycleState{StateDeleting, StateReporting, StateDone}},
		{name: "replace", path: []LifecycleState{StateDeciding, StateCreating, StateConverging, StateReporting}},
		{name: "in place", path: []LifecycleState{StateDeciding, StateConverging, StateReporting}},
		{name: "skip converging", path: []LifecycleState{StateCreating, StateReporting}, wantErr: true},
		{name: "report from start", path: []LifecycleState{StateReporting}, wantErr: true},
		{name: "done twice", path: []LifecycleState{StateDeleting, StateReporting, StateDone, StateDone}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle(zerolog.Nop())
			var err error
			for _, s := range tt.path {
				if err = lc.Transition(s); err != nil {
					break
				}
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, append([]LifecycleState{StateStart}, tt.path...), lc.History())
		})
	}
}

func TestLifecycle_FailedIsAbsorbing(t *testing.T) {
	lc := NewLifecycle(zerolog.Nop())
	require.NoError(t, lc.Transition(StateCreating))
	lc.Fail()
	lc.Fail()

	assert.Equal(t, StateFailed, lc.State())
	assert.Error(t, lc.Transition(StateConverging))
	assert.Equal(t, []LifecycleState{StateStart, StateCreating, StateFailed}, lc.History())
}

func TestBuildPayload(t *testing.T) {
	raw := clusterEvent("Update", "req-1", "prod", map[string]interface{}{}, nil)

	t.Run("success uses outcome physical id", func(t *testing.T) {
		p := BuildPayload(raw, &Outcome{PhysicalID: "prod-2", Data: map[string]interface{}{"Name": "prod-2"}}, nil, "stream")
		assert.Equal(t, ResponseSuccess, p.Status)
		assert.Equal(t, "prod-2", p.PhysicalResourceID)
		assert.Equal(t, "See the details in CloudWatch Log Stream: stream", p.Reason)
		assert.False(t, p.NoEcho)
	})

	t.Run("failure falls back to request physical id", func(t *testing.T) {
		p := BuildPayload(raw, nil, NewPolicyViolation("no"), "stream")
		assert.Equal(t, ResponseFailed, p.Status)
		assert.Equal(t, "prod", p.PhysicalResourceID)
		assert.Equal(t, "no", p.Reason)
		assert.NotNil(t, p.Data)
	})

	t.Run("failure on first create falls back to log stream", func(t *testing.T) {
		first := raw
		first.PhysicalResourceID = ""
		p := BuildPayload(first, nil, NewValidationError("invalid request. Missing 'Config'", nil), "stream")
		assert.Equal(t, "stream", p.PhysicalResourceID)
	})
}
