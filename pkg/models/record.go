package models

// Document is a decoded exchange-schema JSON document
type Document = map[string]interface{}

// Record is a single record of any kind
type Record = map[string]interface{}

// Record list names, which double as warehouse table names
const (
	Revisions    = "revisions"
	Builds       = "builds"
	Environments = "environments"
	Tests        = "tests"
)

// Kinds lists the record kinds in submission order: referenced kinds
// come before the kinds referencing them.
var Kinds = []string{Revisions, Builds, Environments, Tests}

// Key identifies a record within its kind
type Key struct {
	Origin   string
	OriginID string
}

// KeyOf returns the (origin, origin_id) pair of a record.
// The prefix selects a reference, e.g. "build_" for a test's build.
func KeyOf(r Record, prefix string) (Key, bool) {
	origin, ok1 := r[prefix+"origin"].(string)
	id, ok2 := r[prefix+"origin_id"].(string)
	return Key{Origin: origin, OriginID: id}, ok1 && ok2
}

// Records returns the records of one kind, skipping anything that is not an object
func Records(doc Document, kind string) []Record {
	if typed, ok := doc[kind].([]map[string]interface{}); ok {
		return typed
	}
	list, _ := doc[kind].([]interface{})
	records := make([]Record, 0, len(list))
	for _, item := range list {
		if r, ok := item.(map[string]interface{}); ok {
			records = append(records, r)
		}
	}
	return records
}

// LoadResult summarizes a single bulk load
type LoadResult struct {
	Table      string
	RowsParsed int64
	RowsLoaded int64
	Errors     []string
}
