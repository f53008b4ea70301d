package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ZeroIsNull(t *testing.T) {
	var v Value
	assert.True(t, v.IsNull())
	assert.True(t, v.Equal(Null()))
	assert.Nil(t, v.Interface())
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("x"), String("x"), true},
		{"different string", String("x"), String("y"), false},
		{"number", Number(400000), Number(400000), true},
		{"number vs string", Number(1), String("1"), false},
		{"bool", Bool(true), Bool(true), true},
		{"bool differs", Bool(true), Bool(false), false},
		{"null vs empty string", Null(), String(""), false},
		{"null", Null(), Null(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestValue_JSON(t *testing.T) {
	in := map[string]Value{
		"title":  String("Beautiful House"),
		"price":  Number(450000),
		"pool":   Bool(false),
		"status": Null(),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Beautiful House","price":450000,"pool":false,"status":null}`, string(data))

	var out map[string]Value
	require.NoError(t, json.Unmarshal(data, &out))
	for k, v := range in {
		assert.True(t, v.Equal(out[k]), "field %s", k)
	}
}

func TestValue_RejectsComposite(t *testing.T) {
	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &v))
}

func TestFieldRecord_NullSuggestionSurvivesJSON(t *testing.T) {
	null := Null()
	rec := FieldRecord{Value: String("x"), Origin: OriginUser, UserModified: true, PendingSuggestion: &null}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"x","origin":"user","userModified":true,"pendingSuggestion":null}`, string(data))

	var back FieldRecord
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.PendingSuggestion)
	assert.True(t, back.PendingSuggestion.IsNull())
}

func TestFieldRecord_AbsentSuggestion(t *testing.T) {
	var rec FieldRecord
	require.NoError(t, json.Unmarshal([]byte(`{"value":"draft","origin":"default","userModified":false}`), &rec))
	assert.Nil(t, rec.PendingSuggestion)
	assert.Equal(t, OriginDefault, rec.Origin)
}

func TestListingState_CloneIsDeep(t *testing.T) {
	p := String("ai")
	s := ListingState{"d": {Value: String("user"), Origin: OriginUser, UserModified: true, PendingSuggestion: &p}}
	c := s.Clone()
	*c["d"].PendingSuggestion = String("changed")
	assert.True(t, s["d"].PendingSuggestion.Equal(String("ai")))
	assert.NotNil(t, ListingState(nil).Clone())
}

func TestValue_NonFiniteNumbers(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		v := Number(f)
		assert.True(t, v.IsNull(), "Number(%g)", f)
		assert.True(t, v.Equal(v))

		data, err := json.Marshal(map[string]Value{"price": v})
		require.NoError(t, err)
		assert.JSONEq(t, `{"price":null}`, string(data))

		_, err = FromAny(f)
		assert.Error(t, err, "FromAny(%g)", f)
		_, err = FromAny(float32(f))
		assert.Error(t, err, "FromAny(float32(%g))", f)
	}

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`1e400`), &v))
}
