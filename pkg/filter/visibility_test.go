package filter

import (
	"testing"
	"time"

	"github.com/harryosmar/log-visibility/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type level string

func record(channels ...models.Channel) models.Record {
	return models.Record{Channels: channels, Content: "line"}
}

func TestVisibilityFilter_DefaultShowsEverything(t *testing.T) {
	f := NewVisibilityFilter()

	assert.Equal(t, ShowAll, f.Mode())
	assert.True(t, f.Passes(record("INFO")))
	assert.True(t, f.Passes(record()))
}

func TestVisibilityFilter_ZeroValueShowsEverything(t *testing.T) {
	var f VisibilityFilter

	assert.Equal(t, ShowAll, f.Mode())
	assert.True(t, f.Passes(record("DEBUG")))

	assert.False(t, f.AlsoHide("DEBUG"))
	assert.False(t, f.Passes(record("DEBUG")))
}

func TestVisibilityFilter_HideAllAlsoShow(t *testing.T) {
	f := NewVisibilityFilter()
	f.HideAll()
	f.AlsoShow("INFO")

	tests := []struct {
		name     string
		channels []models.Channel
		want     bool
	}{
		{"shown channel", []models.Channel{"INFO"}, true},
		{"hidden channel", []models.Channel{"DEBUG"}, false},
		{"any shown channel is enough", []models.Channel{"INFO", "DEBUG"}, true},
		{"order does not matter", []models.Channel{"DEBUG", "INFO"}, true},
		{"no channels", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Passes(record(tt.channels...)))
		})
	}
}

func TestVisibilityFilter_ShowAllAlsoHide(t *testing.T) {
	f := NewVisibilityFilter()
	f.ShowAll()
	f.AlsoHide("DEBUG")

	tests := []struct {
		name     string
		channels []models.Channel
		want     bool
	}{
		{"hidden channel", []models.Channel{"DEBUG"}, false},
		{"visible channel", []models.Channel{"INFO"}, true},
		{"any hidden channel drops", []models.Channel{"INFO", "DEBUG"}, false},
		{"no channels", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Passes(record(tt.channels...)))
		})
	}
}

func TestVisibilityFilter_ModeSwitchClearsExceptions(t *testing.T) {
	f := NewVisibilityFilter()
	f.ShowAll()
	f.AlsoHide("DEBUG")
	require.False(t, f.Passes(record("DEBUG")))

	f.ShowAll()
	assert.True(t, f.Passes(record("DEBUG")))
	assert.Empty(t, f.Snapshot().Exceptions)

	f.AlsoHide("DEBUG")
	f.HideAll()
	assert.False(t, f.Passes(record("INFO")), "hidden exception must not turn into a shown one")
	assert.False(t, f.Passes(record("DEBUG")))
	assert.Empty(t, f.Snapshot().Exceptions)

	f.AlsoShow("INFO")
	f.ShowAll()
	f.HideAll()
	assert.False(t, f.Passes(record("INFO")))
}

func TestVisibilityFilter_Idempotent(t *testing.T) {
	once := NewVisibilityFilter()
	once.HideAll()

	twice := NewVisibilityFilter()
	twice.HideAll()
	twice.HideAll()
	assert.Equal(t, once.Snapshot(), twice.Snapshot())

	once.ShowAll()
	twice.ShowAll()
	twice.ShowAll()
	assert.Equal(t, once.Snapshot(), twice.Snapshot())
}

func TestVisibilityFilter_ToggleRestoresVerdict(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *VisibilityFilter)
	}{
		{"hide_all", func(f *VisibilityFilter) { f.HideAll() }},
		{"show_all with c hidden", func(f *VisibilityFilter) { f.AlsoHide("c") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewVisibilityFilter()
			tt.setup(f)
			before := f.Passes(record("c"))
			exceptions := f.Snapshot().Exceptions

			f.AlsoShow("c")
			assert.True(t, f.Passes(record("c")))
			f.AlsoHide("c")

			assert.Equal(t, before, f.Passes(record("c")))
			assert.Equal(t, exceptions, f.Snapshot().Exceptions)
		})
	}
}

func TestVisibilityFilter_ForceOverridesPolicy(t *testing.T) {
	forced := models.Record{Channels: []models.Channel{"DEBUG"}, Force: true}

	f := NewVisibilityFilter()
	f.AlsoHide("DEBUG")
	assert.True(t, f.Passes(forced))

	f.HideAll()
	assert.True(t, f.Passes(forced))
	assert.True(t, f.Passes(models.Record{Force: true}))
}

func TestVisibilityFilter_AlsoShowReturn(t *testing.T) {
	f := NewVisibilityFilter()

	// show_all: true only when a hidden exception was removed
	assert.False(t, f.AlsoShow("a"))
	f.AlsoHide("a")
	assert.True(t, f.AlsoShow("a"))
	assert.False(t, f.AlsoShow("a"))

	// hide_all: true when the channel was already shown
	f.HideAll()
	assert.False(t, f.AlsoShow("a"))
	assert.True(t, f.AlsoShow("a"))
}

func TestVisibilityFilter_AlsoHideReturn(t *testing.T) {
	f := NewVisibilityFilter()

	// show_all: true when the channel was already hidden
	assert.False(t, f.AlsoHide("a"))
	assert.True(t, f.AlsoHide("a"))

	// hide_all: true when the channel was not a shown exception
	f.HideAll()
	assert.True(t, f.AlsoHide("a"))
	f.AlsoShow("a")
	assert.False(t, f.AlsoHide("a"))
	assert.True(t, f.AlsoHide("a"))
}

func TestVisibilityFilter_ChannelIdentityIncludesType(t *testing.T) {
	f := NewVisibilityFilter()
	f.HideAll()
	f.AlsoShow(level("ERROR"))

	assert.True(t, f.Passes(record(level("ERROR"))))
	assert.False(t, f.Passes(record("ERROR")))

	f.AlsoShow(42)
	assert.True(t, f.Passes(record(42)))
}

func TestVisibilityFilter_Handle(t *testing.T) {
	f := NewVisibilityFilter()
	f.AlsoHide("DEBUG")

	rec := record("INFO")
	assert.Equal(t, []models.Record{rec}, f.Handle(rec))
	assert.Empty(t, f.Handle(record("DEBUG")))
}

func TestVisibilityFilter_ScopeSignalsEmitNothing(t *testing.T) {
	f := NewVisibilityFilter()

	assert.Empty(t, f.SignalStartTrack(models.Record{Content: "track", Force: true}))
	assert.Empty(t, f.SignalEndTrack(0, time.Now()))

	f.HideAll()
	assert.Empty(t, f.SignalStartTrack(record("INFO")))
	assert.Empty(t, f.SignalEndTrack(3, time.Now()))
}

func TestVisibilityFilter_Snapshot(t *testing.T) {
	f := NewVisibilityFilter()
	f.HideAll()
	f.AlsoShow("WARN")
	f.AlsoShow("ERROR")

	s := f.Snapshot()
	assert.Equal(t, HideAll, s.Mode)
	assert.Equal(t, ModeHideAll, s.ModeName)
	assert.Equal(t, []string{"ERROR", "WARN"}, s.Exceptions)
	assert.Equal(t, "hide_all[ERROR,WARN]", s.String())
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ShowAll, false},
		{"show_all", ShowAll, false},
		{"HIDE_ALL", HideAll, false},
		{" hide_all ", HideAll, false},
		{"verbose", ShowAll, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
