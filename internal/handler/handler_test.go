package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/mobi/internal/activity"
	"github.com/matthewbaird/mobi/internal/analysis"
	"github.com/matthewbaird/mobi/internal/event"
	"github.com/matthewbaird/mobi/internal/fields"
	"github.com/matthewbaird/mobi/internal/schema"
	"github.com/matthewbaird/mobi/internal/session"
	"github.com/matthewbaird/mobi/internal/storage"
	"github.com/matthewbaird/mobi/internal/types"
)

// indexNow writes events to the activity log synchronously.
type indexNow struct{ idx *activity.Indexer }

func (p indexNow) Publish(ctx context.Context, evt event.DomainEvent) {
	_ = p.idx.ProcessEvent(ctx, evt)
}

type analyzerFunc func(ctx context.Context, req analysis.Request) (*types.Manifest, error)

func (f analyzerFunc) Analyze(ctx context.Context, req analysis.Request) (*types.Manifest, error) {
	return f(ctx, req)
}

type testEnv struct {
	router   chi.Router
	sessions *session.Manager
	store    *storage.MemoryStore
	activity *activity.MemoryStore
}

func newTestEnv(t *testing.T, analyzer analysis.Analyzer) *testEnv {
	t.Helper()
	catalog, err := schema.Load()
	require.NoError(t, err)
	if analyzer == nil {
		analyzer = analysis.NewOrchestrator(catalog)
	}

	env := &testEnv{
		store:    storage.NewMemoryStore(),
		activity: activity.NewMemoryStore(),
	}
	env.sessions = session.NewManager(time.Hour, time.Hour, indexNow{activity.NewIndexer(env.activity)})
	env.router = chi.NewRouter()
	env.router.Use(Recovery)
	RegisterRoutes(env.router, Deps{
		Sessions: env.sessions,
		Analyzer: analyzer,
		Store:    env.store,
		Activity: env.activity,
		Catalog:  catalog,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["code"]
}

func (e *testEnv) createSession(t *testing.T) SessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SessionResponse](t, rec)
}

func TestFieldTypes(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/field-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct{ Types []string }](t, rec)
	assert.Equal(t, fields.Types(), got.Types)
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[struct {
		PropertyTypes []string                `json:"property_types"`
		Fields        []types.FieldDescriptor `json:"fields"`
	}](t, rec)
	assert.Contains(t, all.PropertyTypes, "house")
	require.Len(t, all.Fields, 1)
	assert.Equal(t, schema.PropertyTypeID, all.Fields[0].ID)

	rec = env.do(t, http.MethodGet, "/v1/catalog?property_type=house", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	house := decode[struct {
		Fields []types.FieldDescriptor `json:"fields"`
	}](t, rec)
	require.NotEmpty(t, house.Fields)
	assert.Equal(t, schema.PropertyTypeID, house.Fields[0].ID)

	rec = env.do(t, http.MethodGet, "/v1/catalog?property_type=castle", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidValue, errorCode(t, rec))
}

func TestSession_NotFoundAndInvalidID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/v1/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidID, errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/v1/sessions/7f1c9c1e-4d1a-4a55-9a43-5d0c3f0e8b11", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, rec))
}

func TestSession_EditSuggestAccept(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	rec := env.do(t, http.MethodPut, base+"/fields/bedrooms", map[string]any{"value": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[SessionResponse](t, rec)
	assert.Equal(t, types.Number(3), got.Values["bedrooms"])
	assert.Equal(t, types.OriginUser, got.State["bedrooms"].Origin)

	rec = env.do(t, http.MethodPost, base+"/suggestions", map[string]any{"bedrooms": 4, "address": "1 Elm St"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[SessionResponse](t, rec)
	assert.Equal(t, types.Number(3), got.Values["bedrooms"], "a user edit is not overwritten")
	assert.Equal(t, types.Number(4), got.Pending["bedrooms"])
	assert.Equal(t, types.String("1 Elm St"), got.Values["address"])
	assert.Equal(t, types.OriginAI, got.State["address"].Origin)

	rec = env.do(t, http.MethodPost, base+"/fields/bedrooms/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accepted := decode[struct {
		Accepted bool            `json:"accepted"`
		Session  SessionResponse `json:"session"`
	}](t, rec)
	assert.True(t, accepted.Accepted)
	assert.Equal(t, types.Number(4), accepted.Session.Values["bedrooms"])
	assert.Empty(t, accepted.Session.Pending)

	rec = env.do(t, http.MethodPost, base+"/fields/bedrooms/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[struct{ Accepted bool }](t, rec).Accepted)
}

func TestSession_InitField(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	rec := env.do(t, http.MethodPost, base+"/fields/has_pool/init", map[string]any{"value": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[SessionResponse](t, rec)
	assert.Equal(t, types.Bool(false), got.Values["has_pool"])
	assert.Equal(t, types.OriginDefault, got.State["has_pool"].Origin)

	// A second init is a no-op.
	rec = env.do(t, http.MethodPost, base+"/fields/has_pool/init", map[string]any{"value": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.Bool(false), decode[SessionResponse](t, rec).Values["has_pool"])
}

func TestSession_AnalyzeFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	rec := env.do(t, http.MethodPost, base+"/analyze", map[string]any{"input_type": "field_update"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[struct {
		Session SessionResponse `json:"session"`
	}](t, rec)
	require.Len(t, first.Session.Schema, 1)
	assert.Equal(t, schema.PropertyTypeID, first.Session.Schema[0].ID)
	assert.NotEmpty(t, first.Session.AIMessage)

	// The select renderer rejects unknown options.
	rec = env.do(t, http.MethodPut, base+"/fields/property_type", map[string]any{"value": "castle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidValue, errorCode(t, rec))

	rec = env.do(t, http.MethodPut, base+"/fields/property_type", map[string]any{"value": "house"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, base+"/analyze", map[string]any{"input_type": "text", "new_input": "Sunny family home"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[struct {
		Manifest types.Manifest  `json:"manifest"`
		Session  SessionResponse `json:"session"`
	}](t, rec)
	assert.Equal(t, types.String("Sunny family home"), second.Session.Values["description"])
	assert.Equal(t, types.Number(2), second.Session.Values["bedrooms"], "catalog default applied")
	require.NotNil(t, second.Session.CompletionPercentage)
	assert.Greater(t, *second.Session.CompletionPercentage, 0.0)

	ids := make([]string, len(second.Session.Schema))
	for i, d := range second.Session.Schema {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"property_type", "bedrooms", "bathrooms", "square_feet"}, ids)

	// Schema-aware validation now covers bedrooms.
	rec = env.do(t, http.MethodPut, base+"/fields/bedrooms", map[string]any{"value": 99})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, base+"/form", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	form := decode[fields.Form](t, rec)
	require.Len(t, form.Widgets, 4)
	assert.Equal(t, "select", form.Widgets[0].Type)
	assert.Equal(t, types.String("house"), form.Widgets[0].Value)
}

func TestSession_AnalyzeErrors(t *testing.T) {
	failing := analyzerFunc(func(_ context.Context, req analysis.Request) (*types.Manifest, error) {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return nil, errors.New("upstream down")
	})
	env := newTestEnv(t, failing)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	rec := env.do(t, http.MethodPost, base+"/analyze", map[string]any{"input_type": "text"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidBody, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, base+"/analyze", map[string]any{"input_type": "text", "new_input": "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, CodeAnalysisFailed, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, base+"/analyze", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_AnalyzeSendsCurrentValues(t *testing.T) {
	var seen map[string]types.Value
	env := newTestEnv(t, analyzerFunc(func(_ context.Context, req analysis.Request) (*types.Manifest, error) {
		seen = req.CurrentData
		return &types.Manifest{ExtractedData: map[string]types.Value{}}, nil
	}))
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	env.do(t, http.MethodPut, base+"/fields/price", map[string]any{"value": 250000})
	rec := env.do(t, http.MethodPost, base+"/analyze", map[string]any{"input_type": "field_update"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]types.Value{"price": types.Number(250000)}, seen)
}

func TestSession_ResetAndLoadState(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	state := `{"price":{"value":300000,"origin":"user","userModified":true,"pendingSuggestion":310000}}`
	rec := env.do(t, http.MethodPut, base+"/state", state)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[SessionResponse](t, rec)
	assert.Equal(t, types.Number(300000), got.Values["price"])
	assert.Equal(t, types.Number(310000), got.Pending["price"])

	rec = env.do(t, http.MethodPut, base+"/state", `["not","a","map"]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[SessionResponse](t, rec)
	assert.Empty(t, got.State)
	assert.Empty(t, got.Schema)
}

func TestSession_SnapshotAndRestore(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	env.do(t, http.MethodPut, base+"/fields/address", map[string]any{"value": "9 Oak Ave"})
	rec := env.do(t, http.MethodPost, base+"/snapshot", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/sessions", map[string]any{"restore_from": s.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	restored := decode[SessionResponse](t, rec)
	assert.NotEqual(t, s.ID, restored.ID)
	assert.Equal(t, types.String("9 Oak Ave"), restored.Values["address"])
	assert.Equal(t, types.OriginUser, restored.State["address"].Origin)

	rec = env.do(t, http.MethodPost, "/v1/sessions", map[string]any{"restore_from": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession_SaveAndListListings(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	env.do(t, http.MethodPut, base+"/fields/property_type", map[string]any{"value": "condo"})
	env.do(t, http.MethodPut, base+"/fields/price", map[string]any{"value": 420000})

	rec := env.do(t, http.MethodPost, base+"/listing", map[string]any{"status": "published"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[types.Listing](t, rec)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, types.ListingPublished, saved.Status)
	assert.Equal(t, "condo", saved.PropertyType)
	assert.Equal(t, types.Number(420000), saved.Fields["price"])

	rec = env.do(t, http.MethodPost, base+"/listing", map[string]any{"status": "sold"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/listings/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, saved.ID, decode[types.Listing](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/v1/listings?status=published", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct{ Listings []types.Listing }](t, rec).Listings, 1)

	rec = env.do(t, http.MethodGet, "/v1/listings?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/listings/7f1c9c1e-4d1a-4a55-9a43-5d0c3f0e8b11", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession_ActivityFeedAndSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	env.do(t, http.MethodPut, base+"/fields/price", map[string]any{"value": 100000})
	env.do(t, http.MethodPost, base+"/suggestions", map[string]any{"address": "5 Pine Rd"})
	env.do(t, http.MethodPost, base+"/reset", nil)

	rec := env.do(t, http.MethodGet, base+"/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[struct {
		Activities []activity.Entry `json:"activities"`
		TotalCount int              `json:"total_count"`
	}](t, rec)
	assert.Equal(t, 3, feed.TotalCount)

	rec = env.do(t, http.MethodGet, base+"/activity?categories=suggestion", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sugg := decode[struct {
		Activities []activity.Entry `json:"activities"`
	}](t, rec)
	require.Len(t, sugg.Activities, 1)
	assert.Equal(t, event.TypeSuggestionReceived, sugg.Activities[0].EventType)

	rec = env.do(t, http.MethodGet, "/v1/activity/search?q=PINE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[struct {
		TotalCount int `json:"total_count"`
	}](t, rec).TotalCount)

	rec = env.do(t, http.MethodGet, "/v1/activity/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_NumberFieldRejectsNonFinite(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)
	base := "/v1/sessions/" + s.ID

	lo, hi := 0.0, 1e9
	env.sessions.Get(s.ID).ApplyManifest(types.Manifest{
		UISchema: []types.FieldDescriptor{{ID: "price", Type: "number", Label: "Price", Min: &lo, Max: &hi}},
	})

	for _, raw := range []string{`{"value":"NaN"}`, `{"value":"Inf"}`, `{"value":"-Infinity"}`} {
		rec := env.do(t, http.MethodPut, base+"/fields/price", raw)
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
		assert.Equal(t, CodeInvalidValue, errorCode(t, rec), raw)
	}

	rec := env.do(t, http.MethodPut, base+"/fields/price", map[string]any{"value": "450000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[SessionResponse](t, rec)
	assert.Equal(t, types.Number(450000), got.Values["price"])

	rec = env.do(t, http.MethodPost, base+"/snapshot", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	for name, v := range map[string]any{
		"channel": map[string]any{"c": make(chan int)},
		"NaN":     map[string]float64{"price": math.NaN()},
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeJSON(rec, http.StatusCreated, v)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, CodeInternal, errorCode(t, rec))
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestSession_Delete(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.createSession(t)

	rec := env.do(t, http.MethodDelete, "/v1/sessions/"+s.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, env.sessions.Len())

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+s.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, errorCode(t, rec))
}
