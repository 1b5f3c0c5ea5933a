package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/farmer-objection-service/internal/model"
)

func TestParsePage(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 1},
		{"1", 1},
		{"2", 2},
		{" 3 ", 3},
		{"0", 1},
		{"-4", 1},
		{"abc", 1},
		{"2abc", 1},
		{"1.5", 1},
		{"99999999999999999999999", 1},
		{"1000000000000000000", MaxPage},
		{strconv.Itoa(MaxPage), MaxPage},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.raw), func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePage(tt.raw))
		})
	}
}

func TestTotalPages(t *testing.T) {
	for total, want := range map[int]int{0: 0, 1: 1, 9: 1, 10: 1, 11: 2, 20: 2, 21: 3} {
		assert.Equal(t, want, TotalPages(total), "total=%d", total)
	}
}

func TestQueryEngineRequiresAdmin(t *testing.T) {
	store := &MockObjectionStore{
		ListActiveFunc: func(context.Context, string, int, int) ([]model.Objection, int, error) {
			t.Fatal("store must not be queried")
			return nil, 0, nil
		},
		ListArchiveFunc: func(context.Context, string, int, int) ([]model.ArchivedObjection, int, error) {
			t.Fatal("store must not be queried")
			return nil, 0, nil
		},
	}
	q := NewQueryEngine(store)

	_, err := q.ListActive(context.Background(), 1, "", RoleFarmer)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = q.ListArchive(context.Background(), 1, "", RoleFarmer)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestQueryEnginePassesWindowAndTrimmedTerm(t *testing.T) {
	var gotTerm string
	var gotLimit, gotOffset int
	store := &MockObjectionStore{
		ListActiveFunc: func(_ context.Context, term string, limit, offset int) ([]model.Objection, int, error) {
			gotTerm, gotLimit, gotOffset = term, limit, offset
			return nil, 35, nil
		},
	}

	page, err := NewQueryEngine(store).ListActive(context.Background(), 3, "  OBJ-12 ", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "OBJ-12", gotTerm)
	assert.Equal(t, PageSize, gotLimit)
	assert.Equal(t, 20, gotOffset)

	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, "OBJ-12", page.SearchTerm)
	assert.NotNil(t, page.Rows, "rows must serialize as [] not null")

	_, err = NewQueryEngine(store).ListActive(context.Background(), -2, "", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 0, gotOffset, "non-positive page behaves as page 1")

	page, err = NewQueryEngine(store).ListActive(context.Background(), ParsePage("1000000000000000000"), "", RoleAdmin)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gotOffset, 0, "huge page must not wrap to a negative offset")
	assert.Equal(t, (MaxPage-1)*PageSize, gotOffset)
	assert.Equal(t, MaxPage, page.Page)
	assert.Equal(t, 4, page.TotalPages)

	_, err = NewQueryEngine(store).ListActive(context.Background(), math.MaxInt, "", RoleAdmin)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gotOffset, 0)
}

func TestQueryEngineStorageFailure(t *testing.T) {
	store := &MockObjectionStore{
		ListArchiveFunc: func(context.Context, string, int, int) ([]model.ArchivedObjection, int, error) {
			return nil, 0, errDB
		},
	}
	_, err := NewQueryEngine(store).ListArchive(context.Background(), 1, "", RoleAdmin)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, errDB)
}

// seed stores n objections for distinct farmers, all with status st.
func seed(t *testing.T, store *memStore, m *LifecycleManager, firstFarmer uint64, n int, st model.Status) []model.Objection {
	t.Helper()
	ctx := context.Background()
	out := make([]model.Objection, 0, n)
	for i := 0; i < n; i++ {
		fid := firstFarmer + uint64(i)
		store.addFarmer(fid, fmt.Sprintf("First%d", fid), fmt.Sprintf("Last%d", fid))
		o, err := m.Submit(ctx, fid, fmt.Sprintf("TX-%d", fid))
		require.NoError(t, err)
		switch st {
		case model.StatusReviewed:
			o, err = m.Review(ctx, o.ID, RoleAdmin)
		case model.StatusResolved:
			o, err = m.Resolve(ctx, o.ID, RoleAdmin)
		}
		require.NoError(t, err)
		out = append(out, o)
	}
	return out
}

func TestListActivePaginationAgreesWithCount(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewLifecycleManager(store, nil, nil, WithCodeGenerator(sequentialCodes()))
	q := NewQueryEngine(store)

	seed(t, store, m, 1, 14, model.StatusPending)
	seed(t, store, m, 100, 9, model.StatusReviewed)
	seed(t, store, m, 200, 6, model.StatusResolved)

	first, err := q.ListActive(ctx, 1, "", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 3, first.TotalPages)

	seen := map[uint64]bool{}
	var prev *model.Objection
	for page := 1; page <= first.TotalPages; page++ {
		p, err := q.ListActive(ctx, page, "", RoleAdmin)
		require.NoError(t, err)
		for i := range p.Rows {
			o := p.Rows[i]
			assert.True(t, o.Status.IsActive())
			assert.False(t, seen[o.ID], "row %d listed twice", o.ID)
			seen[o.ID] = true
			if prev != nil {
				assert.False(t, o.CreatedAt.After(prev.CreatedAt), "newest first")
			}
			prev = &o
		}
	}
	assert.Len(t, seen, 23)

	past, err := q.ListActive(ctx, 4, "", RoleAdmin)
	require.NoError(t, err)
	assert.Empty(t, past.Rows)
	assert.NotNil(t, past.Rows)
	assert.Equal(t, 3, past.TotalPages)
	assert.Equal(t, 4, past.Page)
}

func TestListActiveSearch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	codes := []string{"OBJ-1234", "OBJ-9999", "OBJ-5120"}
	i := 0
	m := NewLifecycleManager(store, nil, nil, WithCodeGenerator(func() (string, error) {
		c := codes[i]
		i++
		return c, nil
	}))
	q := NewQueryEngine(store)
	seed(t, store, m, 1, 3, model.StatusPending)

	p, err := q.ListActive(ctx, 1, "OBJ-12", RoleAdmin)
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, "OBJ-1234", p.Rows[0].Code)
	assert.Equal(t, 1, p.TotalPages)

	p, err = q.ListActive(ctx, 1, "TX-2", RoleAdmin)
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, "OBJ-9999", p.Rows[0].Code)

	p, err = q.ListActive(ctx, 1, "nothing", RoleAdmin)
	require.NoError(t, err)
	assert.Empty(t, p.Rows)
	assert.Equal(t, 0, p.TotalPages)
}

func TestListArchive(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewLifecycleManager(store, nil, nil, WithCodeGenerator(sequentialCodes()))
	q := NewQueryEngine(store)

	resolved := seed(t, store, m, 1, 12, model.StatusResolved)
	seed(t, store, m, 50, 3, model.StatusPending)

	p, err := q.ListArchive(ctx, 1, "", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalPages)
	require.Len(t, p.Rows, PageSize)
	last := resolved[len(resolved)-1]
	assert.Equal(t, last.ID, p.Rows[0].ID, "most recently updated first")
	assert.Equal(t, "First12", p.Rows[0].FirstName)
	assert.Equal(t, "Last12", p.Rows[0].LastName)

	p, err = q.ListArchive(ctx, 2, "", RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, p.Rows, 2)

	// search narrows rows and the page count together
	p, err = q.ListArchive(ctx, 1, "Last3", RoleAdmin)
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, uint64(3), p.Rows[0].FarmerID)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, "Last3", p.SearchTerm)
}
