package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfsync/shelfsync/synctypes"
)

func stateWith(id string, rec synctypes.StateRecord) *synctypes.State {
	st := synctypes.NewState()
	st.Items[id] = rec
	return st
}

func TestPlan_NewItemsIncluded(t *testing.T) {
	p := New(0)

	catalogue := []synctypes.ItemRecord{
		{ID: "1", Title: "First", Ext: "pdf", UpdatedAt: "2024-08-01", Size: 100},
		{ID: "2", Title: "Second", Ext: "pdf", UpdatedAt: "2024-08-02", Size: 200},
	}

	plan := p.Plan(catalogue, synctypes.NewState())
	require.Len(t, plan, 2)
	assert.Equal(t, "1", plan[0].ID)
	assert.Equal(t, "2", plan[1].ID)
	for _, e := range plan {
		assert.Equal(t, synctypes.ActionUpload, e.Action)
	}
}

func TestPlan_FiltersAlreadySyncedAndBuildsFilename(t *testing.T) {
	p := New(0)

	state := stateWith("1", synctypes.StateRecord{
		UpdatedAt: "2024-08-01",
		Size:      100,
		DestPath:  "/x/Existing.pdf",
	})
	catalogue := []synctypes.ItemRecord{
		{ID: "1", Title: "Existing", Ext: "pdf", UpdatedAt: "2024-08-01", Size: 100},
		{ID: "2", Title: `New / Title?*`, Ext: "pdf", UpdatedAt: "2024-08-02", Size: 200},
	}

	plan := p.Plan(catalogue, state)
	require.Len(t, plan, 1)
	assert.Equal(t, "2", plan[0].ID)
	assert.Equal(t, "New _ Title__.pdf", plan[0].RelPath)
}

func TestPlan_DetectsUpdatesByUpdatedAtOrSize(t *testing.T) {
	p := New(0)
	baseState := func() *synctypes.State {
		return stateWith("1", synctypes.StateRecord{UpdatedAt: "2024-08-01", Size: 100})
	}

	t.Run("updated_at change re-includes", func(t *testing.T) {
		plan := p.Plan([]synctypes.ItemRecord{
			{ID: "1", Title: "Existing", Ext: "pdf", UpdatedAt: "2024-08-02", Size: 100},
		}, baseState())
		require.Len(t, plan, 1)
		assert.Equal(t, "1", plan[0].ID)
	})

	t.Run("size change re-includes", func(t *testing.T) {
		plan := p.Plan([]synctypes.ItemRecord{
			{ID: "1", Title: "Existing", Ext: "pdf", UpdatedAt: "2024-08-01", Size: 101},
		}, baseState())
		require.Len(t, plan, 1)
	})

	t.Run("unchanged excluded", func(t *testing.T) {
		plan := p.Plan([]synctypes.ItemRecord{
			{ID: "1", Title: "Existing", Ext: "pdf", UpdatedAt: "2024-08-01", Size: 100},
		}, baseState())
		assert.Empty(t, plan)
	})
}

func TestPlan_MissingStateFieldsTreatedAschanged(t *testing.T) {
	p := New(0)

	t.Run("missing updated_at", func(t *testing.T) {
		state := stateWith("1", synctypes.StateRecord{Size: 100})
		plan := p.Plan([]synctypes.ItemRecord{
			{ID: "1", UpdatedAt: "2024-08-01", Size: 100},
		}, state)
		require.Len(t, plan, 1)
	})

	t.Run("missing size", func(t *testing.T) {
		state := stateWith("1", synctypes.StateRecord{UpdatedAt: "2024-08-01"})
		plan := p.Plan([]synctypes.ItemRecord{
			{ID: "1", UpdatedAt: "2024-08-01", Size: 100},
		}, state)
		require.Len(t, plan, 1)
	})
}

func TestPlan_DropsItemsWithoutID(t *testing.T) {
	p := New(0)
	plan := p.Plan([]synctypes.ItemRecord{
		{Title: "no id", Ext: "pdf"},
		{ID: "2", Title: "ok", Ext: "pdf"},
	}, synctypes.NewState())
	require.Len(t, plan, 1)
	assert.Equal(t, "2", plan[0].ID)
}

func TestPlan_DefaultsForMissingFields(t *testing.T) {
	p := New(0)
	plan := p.Plan([]synctypes.ItemRecord{{ID: "42"}}, nil)
	require.Len(t, plan, 1)
	// Title falls back to the id, ext to the default.
	assert.Equal(t, "42.pdf", plan[0].RelPath)
}

func TestPlan_Deterministic(t *testing.T) {
	p := New(0)
	catalogue := []synctypes.ItemRecord{
		{ID: "b", Title: "Beta", Ext: "pdf", UpdatedAt: "x", Size: 1},
		{ID: "a", Title: "Alpha", Ext: "epub", UpdatedAt: "y", Size: 2},
	}
	first := p.Plan(catalogue, synctypes.NewState())
	second := p.Plan(catalogue, synctypes.NewState())
	assert.Equal(t, first, second)
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"illegal characters replaced", `a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"whitespace collapsed", "too   many\t spaces ", "too many spaces"},
		{"plain name untouched", "Plain Title", "Plain Title"},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeFileName(tt.input, 0))
		})
	}
}

func TestSafeFileName_TruncatesToBound(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := SafeFileName(long, 150)
	assert.Len(t, got, 150)

	// Truncation never leaves a trailing space.
	spaced := strings.Repeat("x", 149) + " y"
	got = SafeFileName(spaced, 150)
	assert.Equal(t, strings.Repeat("x", 149), got)
}

func TestSafeFileName_Deterministic(t *testing.T) {
	in := `Same / Title?`
	assert.Equal(t, SafeFileName(in, 150), SafeFileName(in, 150))
}

func TestSafeFileName_MultibyteTruncation(t *testing.T) {
	long := strings.Repeat("あ", 200)
	got := SafeFileName(long, 150)
	assert.Equal(t, 150, len([]rune(got)))
}
