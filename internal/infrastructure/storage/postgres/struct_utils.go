package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns returns the column names from T's "db" tags in field
// order, descending into embedded structs.
//
// Usage:
//
//	columns := ExtractDBColumns[unitRow]()
//	// Returns: ["id", "seq", "facility_id", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := getOrCreateTypeMetadata(reflect.TypeOf(zero))
	return append([]string(nil), meta.columns...)
}

// fieldInfo locates a tagged field, possibly inside embedded structs.
type fieldInfo struct {
	index []int
	dbTag string
}

// typeMetadata contains cached reflection metadata for a type.
type typeMetadata struct {
	fields  []fieldInfo
	columns []string
	byTag   map[string]int
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

func getOrCreateTypeMetadata(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{byTag: make(map[string]int)}
	if t.Kind() == reflect.Struct {
		collectFields(t, nil, meta)
	}

	actual, _ := typeCache.LoadOrStore(t, meta)
	return actual.(*typeMetadata)
}

func collectFields(t reflect.Type, prefix []int, meta *typeMetadata) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectFields(field.Type, index, meta)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.byTag[tag] = len(meta.fields)
		meta.fields = append(meta.fields, fieldInfo{index: index, dbTag: tag})
		meta.columns = append(meta.columns, tag)
	}
}

// StructToMap converts a struct to a column map using "db" tags.
func StructToMap(v any) map[string]any {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := getOrCreateTypeMetadata(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, fi := range meta.fields {
		res[fi.dbTag] = rv.FieldByIndex(fi.index).Interface()
	}
	return res
}

// StructValues returns the values of v for columns, in order. It feeds
// COPY, which takes positional rows. Unknown columns yield nil.
func StructValues(v any, columns []string) []any {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := getOrCreateTypeMetadata(rv.Type())
	out := make([]any, len(columns))
	for i, col := range columns {
		if idx, ok := meta.byTag[col]; ok {
			out[i] = rv.FieldByIndex(meta.fields[idx].index).Interface()
		}
	}
	return out
}
