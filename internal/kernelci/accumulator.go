package kernelci

import (
	"kcidb/internal/ioschema"
	"kcidb/pkg/models"
)

// orderedRecords keeps records by id in insertion order
type orderedRecords struct {
	index   map[string]int
	records []interface{}
}

func newOrderedRecords() *orderedRecords {
	return &orderedRecords{index: make(map[string]int)}
}

func (o *orderedRecords) has(id string) bool {
	_, ok := o.index[id]
	return ok
}

// put ignores ids already present
func (o *orderedRecords) put(id string, record models.Record) {
	if o.has(id) {
		return
	}
	o.index[id] = len(o.records)
	o.records = append(o.records, record)
}

func (o *orderedRecords) len() int {
	return len(o.records)
}

// accumulator holds everything collected during one export
type accumulator struct {
	revisions    *orderedRecords
	builds       *orderedRecords
	environments *orderedRecords
	tests        *orderedRecords
}

func newAccumulator() *accumulator {
	return &accumulator{
		revisions:    newOrderedRecords(),
		builds:       newOrderedRecords(),
		environments: newOrderedRecords(),
		tests:        newOrderedRecords(),
	}
}

func (a *accumulator) document() models.Document {
	doc := models.Document{"version": ioschema.Version}
	lists := map[string]*orderedRecords{
		models.Revisions:    a.revisions,
		models.Builds:       a.builds,
		models.Environments: a.environments,
		models.Tests:        a.tests,
	}
	for _, kind := range models.Kinds {
		if records := lists[kind].records; len(records) > 0 {
			doc[kind] = records
		}
	}
	return doc
}
