package listing

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/mobi/internal/types"
)

func ptr(v types.Value) *types.Value { return &v }

// cmpValue compares Values through their exported accessors.
var cmpValue = cmp.Comparer(func(a, b types.Value) bool {
	return a.Kind() == b.Kind() && a.String() == b.String()
})

func TestStore_SetFieldValue(t *testing.T) {
	s := New(nil)
	s.SetFieldValue("title", types.String("Beautiful House"))

	rec, ok := s.Record("title")
	require.True(t, ok)
	assert.True(t, rec.Value.Equal(types.String("Beautiful House")))
	assert.Equal(t, types.OriginUser, rec.Origin)
	assert.True(t, rec.UserModified)
	assert.Nil(t, rec.PendingSuggestion)
}

func TestStore_UserEditKeepsSuggestion(t *testing.T) {
	s := New(nil)
	s.SetAISuggestion("description", types.String("AI text"))
	s.SetFieldValue("description", types.String("User text"))

	rec, _ := s.Record("description")
	assert.True(t, rec.Value.Equal(types.String("User text")))
	require.NotNil(t, rec.PendingSuggestion)
	assert.True(t, rec.PendingSuggestion.Equal(types.String("AI text")))
	assert.True(t, rec.UserModified)
}

func TestStore_SuggestionNeverOverwritesUserValue(t *testing.T) {
	s := New(nil)
	s.SetFieldValue("price", types.Number(400000))
	s.SetAISuggestion("price", types.Number(450000))

	rec, _ := s.Record("price")
	assert.True(t, rec.Value.Equal(types.Number(400000)))
	assert.Equal(t, types.OriginUser, rec.Origin)
	require.NotNil(t, rec.PendingSuggestion)
	assert.True(t, rec.PendingSuggestion.Equal(types.Number(450000)))

	pending := s.PendingSuggestions().Get()
	require.Contains(t, pending, "price")
	assert.True(t, pending["price"].Equal(types.Number(450000)))

	// Any number of later suggestions only move the pending slot.
	for i := 0; i < 5; i++ {
		s.SetAISuggestion("price", types.Number(float64(500000+i)))
	}
	assert.True(t, s.GetFieldValue("price").Equal(types.Number(400000)))
}

func TestStore_SuggestionOverwritesAIAndDefault(t *testing.T) {
	s := New(nil)
	s.InitField("bedrooms", types.Number(2))
	s.SetAISuggestion("bedrooms", types.Number(3))

	rec, _ := s.Record("bedrooms")
	assert.True(t, rec.Value.Equal(types.Number(3)))
	assert.Equal(t, types.OriginAI, rec.Origin)
	assert.False(t, rec.UserModified)

	s.SetAISuggestion("bedrooms", types.Number(4))
	rec, _ = s.Record("bedrooms")
	assert.True(t, rec.Value.Equal(types.Number(4)))
	assert.True(t, rec.PendingSuggestion.Equal(types.Number(4)))
}

func TestStore_PendingExcludesEqualSuggestion(t *testing.T) {
	s := New(nil)
	s.SetAISuggestion("x", types.String("same"))
	s.SetFieldValue("x", types.String("same"))

	assert.NotContains(t, s.PendingSuggestions().Get(), "x")
}

func TestStore_PendingOmitsFieldsWithoutSuggestion(t *testing.T) {
	s := New(nil)
	s.SetFieldValue("a", types.String("v"))
	s.InitField("b", types.Null())
	s.SetAISuggestion("c", types.Bool(true))

	assert.Empty(t, s.PendingSuggestions().Get())
}

func TestStore_InitFieldIsIdempotent(t *testing.T) {
	s := New(nil)
	s.InitField("status", types.String("draft"))
	s.InitField("status", types.String("other"))

	rec, _ := s.Record("status")
	assert.True(t, rec.Value.Equal(types.String("draft")))
	assert.Equal(t, types.OriginDefault, rec.Origin)
	assert.False(t, rec.UserModified)
}

func TestStore_InitFieldDoesNotOverwriteAIOrUser(t *testing.T) {
	s := New(nil)
	s.SetAISuggestion("property_type", types.String("apartment"))
	s.SetFieldValue("title", types.String("Mine"))

	s.InitField("property_type", types.String("house"))
	s.InitField("title", types.Null())

	assert.True(t, s.GetFieldValue("property_type").Equal(types.String("apartment")))
	assert.True(t, s.GetFieldValue("title").Equal(types.String("Mine")))
}

func TestStore_GetFieldValueMissingIsNull(t *testing.T) {
	s := New(nil)
	assert.True(t, s.GetFieldValue("nope").IsNull())
	_, ok := s.Record("nope")
	assert.False(t, ok)
}

func TestStore_ResetIsTotal(t *testing.T) {
	s := New(nil)
	s.SetFieldValue("a", types.String("1"))
	s.SetAISuggestion("b", types.Number(2))
	s.InitField("c", types.Bool(true))

	s.Reset()

	assert.Empty(t, s.ToJSON())
	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, s.GetFieldValue(id).IsNull(), id)
	}
}

func TestStore_LoadStateRoundTrip(t *testing.T) {
	snapshot := types.ListingState{
		"title":   {Value: types.String("Loft"), Origin: types.OriginUser, UserModified: true, PendingSuggestion: ptr(types.String("Flat"))},
		"price":   {Value: types.Number(120000), Origin: types.OriginAI, PendingSuggestion: ptr(types.Number(120000))},
		"status":  {Value: types.String("draft"), Origin: types.OriginDefault},
		"parking": {Value: types.Null(), Origin: types.OriginDefault},
	}

	s := New(nil)
	s.SetFieldValue("stale", types.String("gone"))
	s.LoadState(snapshot)

	if diff := cmp.Diff(snapshot, s.State(), cmpValue); diff != "" {
		t.Errorf("State() mismatch (-want +got):\n%s", diff)
	}

	// Mutating the caller's map must not leak into the store.
	snapshot["title"] = types.FieldRecord{Value: types.String("changed")}
	assert.True(t, s.GetFieldValue("title").Equal(types.String("Loft")))
}

func TestStore_LoadStateTrustsMalformedSnapshot(t *testing.T) {
	s := New(nil)
	s.LoadState(types.ListingState{"odd": {Value: types.String("v"), UserModified: true}})

	rec, ok := s.Record("odd")
	require.True(t, ok)
	assert.Equal(t, types.Origin(""), rec.Origin)
	assert.True(t, rec.UserModified)

	// The flag still protects the value.
	s.SetAISuggestion("odd", types.String("ai"))
	assert.True(t, s.GetFieldValue("odd").Equal(types.String("v")))
}

func TestStore_ToJSON(t *testing.T) {
	s := New(nil)
	s.SetFieldValue("title", types.String("T"))
	s.SetAISuggestion("bedrooms", types.Number(3))
	s.InitField("pool", types.Bool(false))

	got := types.ValuesToAny(s.ToJSON())
	assert.Equal(t, map[string]any{"title": "T", "bedrooms": 3.0, "pool": false}, got)
}

func TestStore_AcceptSuggestion(t *testing.T) {
	s := New(nil)
	s.SetAISuggestion("price", types.Number(450000))
	_, ok := s.AcceptSuggestion("price")
	assert.False(t, ok, "nothing divergent to accept")

	s.SetFieldValue("price", types.Number(400000))
	version, ok := s.AcceptSuggestion("price")
	require.True(t, ok)
	assert.Equal(t, s.Version(), version)

	rec, _ := s.Record("price")
	assert.True(t, rec.Value.Equal(types.Number(450000)))
	assert.Equal(t, types.OriginUser, rec.Origin)
	assert.True(t, rec.UserModified)
	assert.Empty(t, s.PendingSuggestions().Get())

	_, ok = s.AcceptSuggestion("missing")
	assert.False(t, ok)
}

func TestStore_OriginTracksUserModified(t *testing.T) {
	s := New(nil)
	s.InitField("a", types.Null())
	s.SetAISuggestion("a", types.String("ai"))
	s.SetFieldValue("b", types.String("u"))
	s.SetAISuggestion("b", types.String("ai"))
	s.InitField("c", types.Number(1))
	s.SetAISuggestion("d", types.Bool(true))
	s.SetFieldValue("d", types.Bool(false))
	s.AcceptSuggestion("d")

	for id, rec := range s.State() {
		assert.Equal(t, rec.UserModified, rec.Origin == types.OriginUser, id)
	}
}

func TestStore_ApplyManifest(t *testing.T) {
	s := New(nil)
	s.SetFieldValue("bedrooms", types.Number(5))

	s.ApplyManifest(types.Manifest{
		ExtractedData: map[string]types.Value{
			"property_type": types.String("apartment"),
			"bedrooms":      types.Number(2),
		},
		UISchema: []types.FieldDescriptor{
			{ID: "property_type", Type: "select"},
			{ID: "bathrooms", Type: "number", Default: types.Number(1)},
		},
	})

	assert.True(t, s.GetFieldValue("property_type").Equal(types.String("apartment")))
	assert.True(t, s.GetFieldValue("bathrooms").Equal(types.Number(1)))
	assert.True(t, s.GetFieldValue("bedrooms").Equal(types.Number(5)))
	assert.Contains(t, s.PendingSuggestions().Get(), "bedrooms")
}

func TestStore_SubscribeDeliversCurrentStateImmediately(t *testing.T) {
	s := New(types.ListingState{"a": {Value: types.String("x"), Origin: types.OriginDefault}})

	var got []Snapshot
	unsub := s.Subscribe(func(snap Snapshot) { got = append(got, snap) })
	defer unsub()

	require.Len(t, got, 1)
	assert.Equal(t, OpSubscribe, got[0].Change.Op)
	assert.Contains(t, got[0].State, "a")
}

func TestStore_EveryMutationNotifiesAllSubscribersBeforeReturning(t *testing.T) {
	s := New(nil)

	var first, second []uint64
	defer s.Subscribe(func(snap Snapshot) { first = append(first, snap.Version) })()
	defer s.Subscribe(func(snap Snapshot) { second = append(second, snap.Version) })()

	s.SetFieldValue("a", types.String("1"))
	assert.Equal(t, []uint64{0, 1}, first)
	assert.Equal(t, []uint64{0, 1}, second)

	s.SetAISuggestion("a", types.String("2"))
	s.Reset()
	s.LoadState(types.ListingState{})
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, first)
	assert.Equal(t, first, second)
}

func TestStore_NoOpInitDoesNotNotify(t *testing.T) {
	s := New(nil)
	s.InitField("a", types.Null())

	calls := 0
	defer s.Subscribe(func(Snapshot) { calls++ })()
	assert.Equal(t, uint64(1), s.InitField("a", types.String("again")))
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), s.Version())
}

func TestStore_MutationsReturnTheirVersion(t *testing.T) {
	s := New(nil)
	assert.Equal(t, uint64(1), s.SetFieldValue("a", types.String("1")))
	assert.Equal(t, uint64(2), s.SetAISuggestion("a", types.String("2")))
	assert.Equal(t, uint64(3), s.InitField("b", types.Null()))
	v, ok := s.AcceptSuggestion("a")
	require.True(t, ok)
	assert.Equal(t, uint64(4), v)
	assert.Equal(t, uint64(5), s.LoadState(types.ListingState{"c": {}}))
	assert.Equal(t, uint64(6), s.Reset())
}

func TestStore_SnapshotPairsVersionWithState(t *testing.T) {
	s := New(nil)
	s.SetFieldValue("title", types.String("A"))

	snap := s.Snapshot()
	assert.Equal(t, uint64(1), snap.Version)
	assert.True(t, snap.State["title"].Value.Equal(types.String("A")))

	// The snapshot is a copy.
	s.SetFieldValue("title", types.String("B"))
	assert.True(t, snap.State["title"].Value.Equal(types.String("A")))
}

func TestStore_SnapshotIsConsistentUnderConcurrentWrites(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			s.SetFieldValue("n", types.Number(float64(i)))
		}
	}()
	for i := 0; i < 500; i++ {
		snap := s.Snapshot()
		if snap.Version == 0 {
			continue
		}
		n, _ := snap.State["n"].Value.Num()
		require.Equal(t, float64(snap.Version), n)
	}
	wg.Wait()
}

func TestStore_SnapshotCarriesChange(t *testing.T) {
	s := New(nil)
	var last Snapshot
	defer s.Subscribe(func(snap Snapshot) { last = snap })()

	s.SetAISuggestion("price", types.Number(10))
	assert.Equal(t, OpSuggest, last.Change.Op)
	assert.Equal(t, "price", last.Change.FieldID)
	assert.True(t, last.Change.Value.Equal(types.Number(10)))
}

func TestStore_Unsubscribe(t *testing.T) {
	s := New(nil)
	calls := 0
	unsub := s.Subscribe(func(Snapshot) { calls++ })
	unsub()
	unsub()

	s.SetFieldValue("a", types.Null())
	assert.Equal(t, 1, calls)
}

func TestStore_ListenerMayReadAndUnsubscribe(t *testing.T) {
	s := New(nil)
	var seen types.Value
	var unsub func()
	unsub = s.Subscribe(func(snap Snapshot) {
		seen = s.GetFieldValue("a")
		if snap.Version == 1 {
			unsub()
		}
	})

	s.SetFieldValue("a", types.String("1"))
	s.SetFieldValue("a", types.String("2"))
	assert.True(t, seen.Equal(types.String("1")))
}

func TestView_TracksStore(t *testing.T) {
	s := New(nil)
	values := s.Values()

	var deliveries []map[string]types.Value
	defer values.Subscribe(func(m map[string]types.Value) { deliveries = append(deliveries, m) })()

	s.SetFieldValue("title", types.String("A"))
	s.SetAISuggestion("bedrooms", types.Number(2))

	require.Len(t, deliveries, 3)
	assert.Empty(t, deliveries[0])
	assert.Len(t, deliveries[2], 2)
	assert.Equal(t, types.ValuesToAny(s.ToJSON()), types.ValuesToAny(values.Get()))
	assert.Equal(t, s.Version(), values.Version())
}

func TestStore_ConcurrentWritersStayConsistent(t *testing.T) {
	s := New(nil)
	var last uint64
	var mu sync.Mutex
	ordered := true
	defer s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Version != 0 && snap.Version != last+1 {
			ordered = false
		}
		last = snap.Version
	})()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					s.SetFieldValue("f", types.Number(float64(j)))
				} else {
					s.SetAISuggestion("f", types.Number(float64(-j)))
				}
				_ = s.PendingSuggestions().Get()
			}
		}(i)
	}
	wg.Wait()

	assert.True(t, ordered, "versions delivered out of order")
	rec, _ := s.Record("f")
	assert.True(t, rec.UserModified)
	assert.Equal(t, types.OriginUser, rec.Origin)
}
