package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Op is a comparison operator in a where clause.
type Op string

const (
	OpEq  Op = "=="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpIn  Op = "in"
)

// Condition is a single where clause.
type Condition struct {
	Field string
	Op    Op
	Value interface{}
}

// Where builds a Condition.
func Where(field string, op Op, value interface{}) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Where      []Condition
	OrderBy    string
	Desc       bool
}

// Validate reports whether the query can be evaluated.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	for _, c := range q.Where {
		switch c.Op {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
		case OpIn:
			if v := reflect.ValueOf(c.Value); !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
				return fmt.Errorf("%w: %q needs a list value", ErrInvalidQuery, c.Field)
			}
		default:
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, c.Op)
		}
		if c.Field == "" {
			return fmt.Errorf("%w: empty field", ErrInvalidQuery)
		}
	}
	return nil
}

// Matches evaluates every condition against doc.
func (q Query) Matches(doc Document) bool {
	for _, c := range q.Where {
		var v interface{}
		var ok bool
		if c.Field == "_id" {
			v, ok = doc.ID, true
		} else {
			v, ok = Lookup(doc.Data, c.Field)
		}
		if !ok {
			return false
		}
		if !c.matches(v) {
			return false
		}
	}
	return true
}

func (c Condition) matches(v interface{}) bool {
	switch c.Op {
	case OpEq:
		return equal(v, c.Value)
	case OpIn:
		list := reflect.ValueOf(c.Value)
		for i := 0; i < list.Len(); i++ {
			if equal(v, list.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	cmp, ok := compare(v, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// Sort orders docs in place by the query's OrderBy field. Documents lacking
// the field sort first in ascending order. Ties keep their existing order.
func (q Query) Sort(docs []Document) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, aok := Lookup(docs[i].Data, q.OrderBy)
		b, bok := Lookup(docs[j].Data, q.OrderBy)
		var cmp int
		switch {
		case !aok && !bok:
			return false
		case !aok:
			cmp = -1
		case !bok:
			cmp = 1
		default:
			cmp, _ = compare(a, b)
		}
		if q.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// Lookup resolves a dotted path inside nested maps.
func Lookup(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = data
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case primitive.M:
		return m, true
	}
	return nil, false
}

func equal(a, b interface{}) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers, strings, booleans and timestamps. The second
// result is false when the values are not comparable.
func compare(a, b interface{}) (int, bool) {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if x, ok := a.(string); ok {
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	if x, ok := a.(bool); ok {
		y, ok := b.(bool)
		if !ok || x == y {
			return 0, ok
		}
		if !x {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case primitive.DateTime:
		return float64(n), true
	case time.Time:
		return float64(n.UnixMilli()), true
	}
	return 0, false
}
