package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestQueryMatches(t *testing.T) {
	doc := Document{ID: "n1", Data: map[string]interface{}{
		"expires_at": int64(1000),
		"target":     map[string]interface{}{"scope": "admin"},
		"created":    primitive.NewDateTimeFromTime(time.UnixMilli(500)),
	}}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"id equality", Where("_id", OpEq, "n1"), true},
		{"strictly greater at boundary", Where("expires_at", OpGt, int64(1000)), false},
		{"greater or equal at boundary", Where("expires_at", OpGte, 1000), true},
		{"less than", Where("expires_at", OpLt, 1001.0), true},
		{"nested path", Where("target.scope", OpEq, "admin"), true},
		{"missing field never matches", Where("nope", OpEq, "x"), false},
		{"in list", Where("target.scope", OpIn, []string{"viewer", "admin"}), true},
		{"not in list", Where("target.scope", OpIn, []string{"viewer"}), false},
		{"datetime against time", Where("created", OpLte, time.UnixMilli(500)), true},
		{"mismatched types", Where("expires_at", OpGt, "abc"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Query{Collection: "c", Where: []Condition{tt.cond}}
			assert.Equal(t, tt.want, q.Matches(doc))
		})
	}
}

func TestQuerySort(t *testing.T) {
	docs := []Document{
		{ID: "a", Data: map[string]interface{}{"n": 2}},
		{ID: "b", Data: map[string]interface{}{}},
		{ID: "c", Data: map[string]interface{}{"n": 5}},
		{ID: "d", Data: map[string]interface{}{"n": 2}},
	}

	Query{OrderBy: "n"}.Sort(docs)
	assert.Equal(t, []string{"b", "a", "d", "c"}, ids(docs))

	Query{OrderBy: "n", Desc: true}.Sort(docs)
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids(docs))
}

func TestLookup(t *testing.T) {
	data := map[string]interface{}{"a": primitive.M{"b": map[string]interface{}{"c": 1}}}
	v, ok := Lookup(data, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = Lookup(data, "a.x.c")
	assert.False(t, ok)
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
