package filter

import (
	"testing"

	"github.com/harryosmar/log-visibility/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateHandler_Visibility(t *testing.T) {
	for _, kind := range []string{"", TypeVisibility} {
		h, err := CreateHandler(kind, Policy{Default: ModeHideAll, Show: []string{"ERROR"}}, zap.NewNop())
		require.NoError(t, err)

		f, ok := h.(*VisibilityFilter)
		require.True(t, ok)
		assert.Equal(t, HideAll, f.Mode())
		assert.True(t, f.Passes(record("ERROR")))
		assert.False(t, f.Passes(record("INFO")))
	}
}

func TestCreateHandler_InvalidPolicy(t *testing.T) {
	_, err := CreateHandler(TypeVisibility, Policy{Default: "loud"}, zap.NewNop())
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestCreateHandler_PassAll(t *testing.T) {
	h, err := CreateHandler(TypePassAll, Policy{}, zap.NewNop())
	require.NoError(t, err)

	rec := models.NewRecord("hello")
	assert.Equal(t, []models.Record{rec}, h.Handle(rec))
	assert.Empty(t, h.SignalStartTrack(rec))
}

func TestCreateHandler_Unsupported(t *testing.T) {
	_, err := CreateHandler("regex", Policy{}, zap.NewNop())

	var unsupported ErrUnsupportedHandlerType
	require.ErrorAs(t, err, &unsupported)
	assert.EqualError(t, err, "unsupported handler type: regex")
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"empty", Policy{}, false},
		{"hide all with shows", Policy{Default: ModeHideAll, Show: []string{"INFO"}}, false},
		{"bad default", Policy{Default: "quiet"}, true},
		{"blank show", Policy{Show: []string{" "}}, true},
		{"blank hide", Policy{Hide: []string{""}}, true},
		{"show all with hides", Policy{Default: ModeShowAll, Hide: []string{"DEBUG"}}, false},
		{"hide all with hides", Policy{Default: ModeHideAll, Hide: []string{"DEBUG"}}, true},
		{"hide all with shows and hides", Policy{Default: ModeHideAll, Show: []string{"x"}, Hide: []string{"x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPolicy_ApplyToReplacesState(t *testing.T) {
	f := NewVisibilityFilter()
	f.HideAll()
	f.AlsoShow("stale")

	err := Policy{Default: ModeShowAll, Hide: []string{"DEBUG", "TRACE"}}.ApplyTo(f)
	require.NoError(t, err)

	assert.Equal(t, ShowAll, f.Mode())
	assert.Equal(t, []string{"DEBUG", "TRACE"}, f.Snapshot().Exceptions)
	assert.True(t, f.Passes(record("stale")))
	assert.False(t, f.Passes(record("TRACE")))
}

func TestPolicy_ShowWinsOverHide(t *testing.T) {
	f := NewVisibilityFilter()
	p := Policy{Default: ModeShowAll, Show: []string{"x"}, Hide: []string{"x", "y"}}
	require.NoError(t, p.ApplyTo(f))
	assert.True(t, f.Passes(record("x")))
	assert.False(t, f.Passes(record("y")))
}

func TestPolicy_HideUnderHideAllRejected(t *testing.T) {
	f := NewVisibilityFilter()
	f.AlsoHide("DEBUG")

	err := Policy{Default: ModeHideAll, Hide: []string{"X"}}.ApplyTo(f)
	require.ErrorIs(t, err, ErrHideUnderHideAll)
	assert.Equal(t, ShowAll, f.Mode())
	assert.Equal(t, []string{"DEBUG"}, f.Snapshot().Exceptions)
}

func TestPolicy_InvalidLeavesFilterUntouched(t *testing.T) {
	f := NewVisibilityFilter()
	f.AlsoHide("DEBUG")

	err := Policy{Default: "nope"}.ApplyTo(f)
	require.Error(t, err)
	assert.Equal(t, []string{"DEBUG"}, f.Snapshot().Exceptions)
}

func TestPolicyFromSnapshot_RoundTrip(t *testing.T) {
	f := NewVisibilityFilter()
	require.NoError(t, Policy{Default: ModeHideAll, Show: []string{"WARN", "ERROR"}}.ApplyTo(f))

	p := PolicyFromSnapshot(f.Snapshot())
	assert.Equal(t, Policy{Default: ModeHideAll, Show: []string{"ERROR", "WARN"}}, p)

	g := NewVisibilityFilter()
	require.NoError(t, p.ApplyTo(g))
	assert.Equal(t, f.Snapshot(), g.Snapshot())
}
