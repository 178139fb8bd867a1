package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPostsPaginationMatchesOrderedSlice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	var all []uint
	for i := 0; i < 8; i++ {
		author := alice
		if i%3 == 0 {
			author = bob
		}
		all = append(all, f.post(t, author, fmt.Sprintf("post %d", i)))
	}
	// newest first
	newest := make([]uint, len(all))
	for i, id := range all {
		newest[len(all)-1-i] = id
	}

	_, pagination, err := f.listing.ListPosts(ctx, 1, Filters{})
	require.NoError(t, err)
	assert.Equal(t, 3, pagination.PagesCount)
	assert.Equal(t, int64(8), pagination.Total)

	for page := 1; page <= pagination.PagesCount; page++ {
		items, p, err := f.listing.ListPosts(ctx, page, Filters{})
		require.NoError(t, err)
		assert.Equal(t, page, p.Current)

		from := (page - 1) * PageSize
		to := min(page*PageSize, len(newest))
		got := make([]uint, 0, len(items))
		for _, it := range items {
			got = append(got, it.ID)
		}
		assert.Equal(t, newest[from:to], got, "page %d", page)
	}
}

func TestListPostsOutOfRangeAndClamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	for i := 0; i < 4; i++ {
		f.post(t, alice, fmt.Sprintf("p%d", i))
	}

	items, p, err := f.listing.ListPosts(ctx, 7, Filters{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
	assert.Equal(t, 7, p.Current)
	assert.Equal(t, 2, p.PagesCount)

	// a page whose offset would overflow is still past the end
	items, p, err = f.listing.ListPosts(ctx, 1<<62+1, Filters{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
	assert.Equal(t, 1<<62+1, p.Current)
	assert.Equal(t, 2, p.PagesCount)

	for _, page := range []int{0, -3} {
		items, p, err = f.listing.ListPosts(ctx, page, Filters{})
		require.NoError(t, err)
		assert.Equal(t, 1, p.Current)
		assert.Len(t, items, PageSize)
	}
}

func TestListPostsEmptyStore(t *testing.T) {
	f := newFixture(t)
	items, p, err := f.listing.ListPosts(context.Background(), 1, Filters{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, p.PagesCount)
	assert.Equal(t, 1, p.Current)
}

func TestListPostsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	a1 := f.post(t, alice, "Learning Rust")
	a2 := f.post(t, alice, "Go tips")
	b1 := f.post(t, bob, "rust in production")
	b2 := f.post(t, bob, "100% coverage_report")

	rust, err := f.tags.FindOrCreate(ctx, "rust")
	require.NoError(t, err)
	misc, err := f.tags.FindOrCreate(ctx, "misc")
	require.NoError(t, err)
	require.NoError(t, f.tags.AddToPost(ctx, rust, a1))
	require.NoError(t, f.tags.AddToPost(ctx, rust, b1))
	require.NoError(t, f.tags.AddToPost(ctx, misc, a2))

	collect := func(flt Filters) ([]uint, int) {
		t.Helper()
		var out []uint
		pages := 0
		for page := 1; ; page++ {
			items, p, err := f.listing.ListPosts(ctx, page, flt)
			require.NoError(t, err)
			pages = p.PagesCount
			if len(items) == 0 {
				break
			}
			for _, it := range items {
				out = append(out, it.ID)
			}
		}
		return out, pages
	}

	got, pages := collect(Filters{AuthorID: &alice})
	assert.Equal(t, []uint{a2, a1}, got)
	assert.Equal(t, 1, pages)

	got, _ = collect(Filters{Search: "RUST"})
	assert.Equal(t, []uint{b1, a1}, got)

	got, _ = collect(Filters{Search: "rust", AuthorID: &bob})
	assert.Equal(t, []uint{b1}, got)

	got, _ = collect(Filters{TagID: &rust})
	assert.Equal(t, []uint{b1, a1}, got)

	got, _ = collect(Filters{TagID: &rust, AuthorID: &alice, Search: "learn"})
	assert.Equal(t, []uint{a1}, got)

	// wildcard characters are matched literally
	got, _ = collect(Filters{Search: "100%"})
	assert.Equal(t, []uint{b2}, got)
	got, _ = collect(Filters{Search: "e_r"})
	assert.Equal(t, []uint{b2}, got)
	got, _ = collect(Filters{Search: "%"})
	assert.Equal(t, []uint{b2}, got)

	// titles outside ASCII are found by their own text
	ru := f.post(t, bob, "Привет мир")
	got, _ = collect(Filters{Search: "Привет"})
	assert.Equal(t, []uint{ru}, got)
	got, _ = collect(Filters{Search: "мир"})
	assert.Equal(t, []uint{ru}, got)

	// body text is not searched
	got, _ = collect(Filters{Search: "body of"})
	assert.Empty(t, got)
}

func TestListPostsTagFilterExcludesOtherTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	onlyA := f.post(t, alice, "only a")
	onlyB := f.post(t, alice, "only b")
	both := f.post(t, alice, "both")

	_, err := f.tags.TagPost(ctx, onlyA, "a")
	require.NoError(t, err)
	_, err = f.tags.TagPost(ctx, onlyB, "b")
	require.NoError(t, err)
	_, err = f.tags.TagPost(ctx, both, "a,b")
	require.NoError(t, err)

	a, err := f.tags.FindOrCreate(ctx, "a")
	require.NoError(t, err)

	items, p, err := f.listing.ListPosts(ctx, 1, Filters{TagID: &a})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Total)
	got := []uint{}
	for _, it := range items {
		got = append(got, it.ID)
	}
	assert.Equal(t, []uint{both, onlyA}, got)
	assert.NotContains(t, got, onlyB)
}

func TestPagesCount(t *testing.T) {
	cases := map[int64]int{0: 0, 1: 1, 3: 1, 4: 2, 6: 2, 7: 3}
	for total, want := range cases {
		assert.Equal(t, want, PagesCount(total), "total %d", total)
	}
}
