package timetable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starscheduler/starscheduler/internal/model"
)

func openEmpty(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timetable.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<timetable></timetable>`), 0o644))
	store, err := Open(path, nil)
	require.NoError(t, err)
	return store
}

func TestWriteThenReloadRoundTrip(t *testing.T) {
	store := openEmpty(t)

	event := model.Event{
		DisplayName:  "Morning Cue",
		Category:     model.CategoryCuePresentation,
		Enabled:      true,
		RunAtStartup: true,
		Hours:        []model.HourRule{{Hour: 6, Period: "AM"}},
		Days:         []string{"Monday", "Tuesday"},
		Weeks:        []int{1, 3},
		Months:       []int{1, 2},
		ClientConfigs: map[string]model.ClientConfig{
			"g1": {
				ClientID:        "i2xd_10_0_0_5",
				Action:          model.ActionLoadRun,
				Flavor:          "domestic/V",
				PresentationID:  "1",
				DurationSeconds: 60,
			},
		},
	}

	require.NoError(t, store.Write(event))

	got, ok := store.Snapshot().ByName("Morning Cue")
	require.True(t, ok)
	assert.Equal(t, event.Category, got.Category)
	assert.Equal(t, event.Enabled, got.Enabled)
	assert.Equal(t, event.RunAtStartup, got.RunAtStartup)
	assert.Equal(t, event.Hours, got.Hours)
	assert.Equal(t, event.Days, got.Days)
	assert.Equal(t, event.Weeks, got.Weeks)
	assert.Equal(t, event.Months, got.Months)
	require.Contains(t, got.ClientConfigs, "g1")
	assert.Equal(t, event.ClientConfigs["g1"], got.ClientConfigs["g1"])

	// reload from a freshly opened Store over the same file must agree.
	reopened, err := Open(store.path, nil)
	require.NoError(t, err)
	reloaded, ok := reopened.Snapshot().ByName("Morning Cue")
	require.True(t, ok)
	assert.Equal(t, got, reloaded)
}

func TestLegacyFlavorSynthesizesLoadRunClientConfig(t *testing.T) {
	// A raw XML file using only the legacy <flavor> mapping (no
	// <ClientConfigs>) must synthesize the equivalent LoadRun
	// client_config at the 60-second legacy duration.
	raw := `<timetable>
  <event>
    <DisplayName>Legacy Spot 2</DisplayName>
    <Category>Cue Presentation</Category>
    <TargetID>1</TargetID>
    <Enabled>true</Enabled>
    <flavor>
      <flavor client="i2hd_2">domestic/V</flavor>
    </flavor>
  </event>
</timetable>`
	path := filepath.Join(t.TempDir(), "legacy.xml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	legacyStore, err := Open(path, nil)
	require.NoError(t, err)

	got, ok := legacyStore.Snapshot().ByName("Legacy Spot 2")
	require.True(t, ok)
	require.Len(t, got.ClientConfigs, 1)
	for _, cc := range got.ClientConfigs {
		assert.Equal(t, "i2hd_2", cc.ClientID)
		assert.Equal(t, model.ActionLoadRun, cc.Action)
		assert.Equal(t, "domestic/V", cc.Flavor)
		assert.Equal(t, legacySynthesisDuration, cc.DurationSeconds)
	}
	assert.Equal(t, "domestic/V", got.Flavor["i2hd_2"])
}

func TestDeleteRemovesEvent(t *testing.T) {
	store := openEmpty(t)
	require.NoError(t, store.Write(model.Event{DisplayName: "ToDelete", Category: model.CategoryCustomCommand}))

	found, err := store.Delete("ToDelete")
	require.NoError(t, err)
	assert.True(t, found)

	_, ok := store.Snapshot().ByName("ToDelete")
	assert.False(t, ok)

	found, err = store.Delete("NeverExisted")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEditReplacesEventByOldName(t *testing.T) {
	store := openEmpty(t)
	require.NoError(t, store.Write(model.Event{DisplayName: "Original", Category: model.CategoryCustomCommand, Enabled: true}))

	found, err := store.Edit("Original", model.Event{DisplayName: "Renamed", Category: model.CategoryCustomCommand, Enabled: false})
	require.NoError(t, err)
	assert.True(t, found)

	_, stillThere := store.Snapshot().ByName("Original")
	assert.False(t, stillThere)
	renamed, ok := store.Snapshot().ByName("Renamed")
	require.True(t, ok)
	assert.False(t, renamed.Enabled)
}

func TestSetOnChangeInvokedAfterWrite(t *testing.T) {
	store := openEmpty(t)
	called := 0
	store.SetOnChange(func() { called++ })

	require.NoError(t, store.Write(model.Event{DisplayName: "Notify", Category: model.CategoryCustomCommand}))
	assert.Equal(t, 1, called)
}
