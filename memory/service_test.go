package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentIDIsDeterministic(t *testing.T) {
	a := ContentID("buy milk")
	b := ContentID("buy milk")
	c := ContentID("buy bread")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	// UUID shape, stable across releases.
	assert.Len(t, a, 36)
}

func TestAddIsIdempotentForIdenticalContent(t *testing.T) {
	svc, store := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})
	ctx := context.Background()

	first, err := svc.Add(ctx, AddParams{Collection: "notes", Content: "buy milk", Principal: "alice"})
	require.NoError(t, err)
	assert.Equal(t, ContentID("buy milk"), first.ID)
	assert.False(t, first.Duplicate)

	second, err := svc.Add(ctx, AddParams{Collection: "notes", Content: "buy milk", Principal: "alice"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Duplicate, "identical content scores 1.0 against itself")

	store.mu.Lock()
	assert.Len(t, store.collections["notes"], 1, "repeated add must not create a second record")
	store.mu.Unlock()
}

func TestAddValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})
	ctx := context.Background()

	_, err := svc.Add(ctx, AddParams{Content: "x", Principal: "alice"})
	assert.True(t, IsValidation(err))

	_, err = svc.Add(ctx, AddParams{Collection: "notes", Principal: "alice"})
	assert.True(t, IsValidation(err))

	_, err = svc.Add(ctx, AddParams{Collection: "missing", Content: "x", Principal: "alice"})
	assert.True(t, IsNotFound(err))
}

func TestAddEnforcesWritePermission(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})

	_, err := svc.Add(context.Background(), AddParams{
		Collection: "notes", Content: "sneaky", Principal: "mallory",
	})
	assert.True(t, IsForbidden(err))
}

func TestUpdatePermissionsRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})
	ctx := context.Background()

	// A non-admin may not rewrite the ACL to grant itself write access.
	_, err := svc.Registry().Update(ctx, "notes", UpdateSpec{
		Permissions: &Permissions{Write: []string{"mallory"}, Admin: []string{"mallory"}},
		UpdatedBy:   "mallory",
	})
	assert.True(t, IsForbidden(err))

	_, err = svc.Add(ctx, AddParams{Collection: "notes", Content: "sneaky", Principal: "mallory"})
	assert.True(t, IsForbidden(err), "failed escalation must not unlock writes")

	// Non-permission fields stay open to any caller.
	desc := "shared scratch space"
	_, err = svc.Registry().Update(ctx, "notes", UpdateSpec{Description: &desc, UpdatedBy: "mallory"})
	assert.NoError(t, err)

	// The actual admin can still delegate.
	updated, err := svc.Registry().Update(ctx, "notes", UpdateSpec{
		Permissions: &Permissions{Read: []string{Wildcard}, Write: []string{"alice", "bob"}, Admin: []string{"alice"}},
		UpdatedBy:   "alice",
	})
	require.NoError(t, err)
	assert.True(t, updated.Permissions.CanWrite("bob"))
}

func TestAddDeduplicationThresholds(t *testing.T) {
	tests := []struct {
		name      string
		score     float32
		duplicate bool
		nearMiss  bool
	}{
		{"above threshold", 0.93, true, false},
		{"exactly at threshold", 0.85, true, false},
		{"exactly at near-miss floor", 0.80, false, true},
		{"just below near-miss floor", 0.799, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t, testConfig())
			mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})

			existing := "remember to buy milk"
			store.scripted["notes"] = []SearchHit{{
				ID:         ContentID(existing),
				Score:      tt.score,
				Collection: "notes",
			}}

			res, err := svc.Add(context.Background(), AddParams{
				Collection: "notes", Content: "buy milk", Principal: "alice",
			})
			require.NoError(t, err)

			assert.Equal(t, tt.duplicate, res.Duplicate)
			assert.Equal(t, tt.nearMiss, res.NearMiss)
			if tt.duplicate {
				assert.Equal(t, ContentID(existing), res.ID, "duplicate upserts over the matched record")
			} else {
				assert.Equal(t, ContentID("buy milk"), res.ID)
			}
		})
	}
}

func TestAddReservedPayloadKeysWinOverMetadata(t *testing.T) {
	svc, store := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})

	res, err := svc.Add(context.Background(), AddParams{
		Collection: "notes",
		Content:    "buy milk",
		Metadata:   map[string]any{"content": "forged", "added_by": "mallory", "source": "cli"},
		Tags:       []string{"errand"},
		Principal:  "alice",
	})
	require.NoError(t, err)

	store.mu.Lock()
	point := store.collections["notes"][res.ID]
	store.mu.Unlock()

	assert.Equal(t, "buy milk", point.Payload["content"])
	assert.Equal(t, "alice", point.Payload["added_by"])
	assert.Equal(t, "notes", point.Payload["collection"])
	assert.Equal(t, "cli", point.Payload["source"])
	assert.Equal(t, []string{"errand"}, point.Payload["tags"])
	assert.NotEmpty(t, point.Payload["timestamp"])
}

func TestSearchFindsStoredContent(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})
	ctx := context.Background()

	for _, content := range []string{"buy milk", "walk the dog", "review the deploy checklist"} {
		_, err := svc.Add(ctx, AddParams{Collection: "notes", Content: content, Principal: "alice"})
		require.NoError(t, err)
	}

	res, err := svc.Search(ctx, SearchParams{Query: "buy milk", Collections: []string{"notes"}, Principal: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)

	assert.Equal(t, ContentID("buy milk"), res.Hits[0].ID)
	assert.InDelta(t, 1.0, float64(res.Hits[0].Score), 1e-3)
	assert.Equal(t, "notes", res.Hits[0].Collection)

	// Ranked by descending score.
	for i := 1; i < len(res.Hits); i++ {
		assert.GreaterOrEqual(t, res.Hits[i-1].Score, res.Hits[i].Score)
	}
}

func TestSearchSkipsFailingCollections(t *testing.T) {
	svc, store := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "healthy", CreatedBy: "alice"})
	mustCreate(t, svc, CollectionSpec{Name: "broken", CreatedBy: "alice"})
	ctx := context.Background()

	_, err := svc.Add(ctx, AddParams{Collection: "healthy", Content: "buy milk", Principal: "alice"})
	require.NoError(t, err)

	store.searchErr["broken"] = errors.New("backend unavailable")

	res, err := svc.Search(ctx, SearchParams{
		Query:       "buy milk",
		Collections: []string{"healthy", "broken"},
		Principal:   "alice",
	})
	require.NoError(t, err, "one failing collection must not abort the search")

	require.Len(t, res.PerCollection, 2)
	assert.False(t, res.PerCollection[0].Skipped())
	assert.True(t, res.PerCollection[1].Skipped())
	assert.Equal(t, []string{"healthy", "broken"}, res.SearchedCollections())

	require.NotEmpty(t, res.Hits)
	for _, hit := range res.Hits {
		assert.Equal(t, "healthy", hit.Collection)
	}
}

func TestSearchSkipsUnreadableCollections(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "private", Permissions: &Permissions{
		Read:  []string{"alice"},
		Write: []string{"alice"},
		Admin: []string{"alice"},
	}, CreatedBy: "alice"})

	res, err := svc.Search(context.Background(), SearchParams{
		Query:       "anything",
		Collections: []string{"private"},
		Principal:   "mallory",
	})
	require.NoError(t, err)
	require.Len(t, res.PerCollection, 1)
	assert.True(t, res.PerCollection[0].Skipped())
	assert.True(t, IsForbidden(res.PerCollection[0].Err))
	assert.Empty(t, res.Hits)
}

func TestSearchDefaultsToReadableCollections(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "open", CreatedBy: "alice"})
	mustCreate(t, svc, CollectionSpec{Name: "private", Permissions: &Permissions{
		Read:  []string{"alice"},
		Write: []string{"alice"},
		Admin: []string{"alice"},
	}, CreatedBy: "alice"})
	ctx := context.Background()

	_, err := svc.Add(ctx, AddParams{Collection: "open", Content: "shared note", Principal: "alice"})
	require.NoError(t, err)

	res, err := svc.Search(ctx, SearchParams{Query: "shared note", Principal: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, res.SearchedCollections())
}

func TestSearchValidatesQuery(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	_, err := svc.Search(context.Background(), SearchParams{Principal: "alice"})
	assert.True(t, IsValidation(err))
}

func TestGetAndDelete(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})
	ctx := context.Background()

	res, err := svc.Add(ctx, AddParams{Collection: "notes", Content: "buy milk", Principal: "alice"})
	require.NoError(t, err)

	point, err := svc.Get(ctx, res.ID, "notes")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", point.Payload["content"])

	_, err = svc.Get(ctx, ContentID("never stored"), "notes")
	assert.True(t, IsNotFound(err))

	_, err = svc.Get(ctx, res.ID, "missing")
	assert.True(t, IsNotFound(err))

	err = svc.Delete(ctx, res.ID, "notes", "mallory")
	assert.True(t, IsForbidden(err))

	require.NoError(t, svc.Delete(ctx, res.ID, "notes", "alice"))
	_, err = svc.Get(ctx, res.ID, "notes")
	assert.True(t, IsNotFound(err))
}

func TestStatsAggregatesContent(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	mustCreate(t, svc, CollectionSpec{Name: "notes", CreatedBy: "alice"})
	ctx := context.Background()

	_, err := svc.Add(ctx, AddParams{
		Collection: "notes", Content: "buy milk", Tags: []string{"errand"}, Principal: "alice",
	})
	require.NoError(t, err)
	_, err = svc.Add(ctx, AddParams{
		Collection: "notes", Content: "walk the dog", Tags: []string{"errand", "pets"}, Principal: "bob",
	})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "notes")
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.PointCount)
	assert.Equal(t, "green", stats.Status)
	assert.Equal(t, 2, stats.TagCounts["errand"])
	assert.Equal(t, 1, stats.TagCounts["pets"])
	assert.Equal(t, 2, stats.Contributors)
	assert.Greater(t, stats.AvgSize, 0)
	require.NotNil(t, stats.Metadata)
	assert.Equal(t, "notes", stats.Metadata.Name)
}
