package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyOf(t *testing.T) {
	test := Record{
		"origin":          "kernelci",
		"origin_id":       "t1",
		"build_origin":    "kernelci",
		"build_origin_id": "b1",
	}

	key, ok := KeyOf(test, "")
	assert.True(t, ok)
	assert.Equal(t, Key{Origin: "kernelci", OriginID: "t1"}, key)

	key, ok = KeyOf(test, "build_")
	assert.True(t, ok)
	assert.Equal(t, "b1", key.OriginID)

	_, ok = KeyOf(test, "environment_")
	assert.False(t, ok)
}

func TestRecords(t *testing.T) {
	doc := Document{
		"version": "1",
		Builds:    []interface{}{map[string]interface{}{"origin": "a"}, "junk"},
		Tests:     []map[string]interface{}{{"origin": "b"}},
	}

	assert.Len(t, Records(doc, Builds), 1)
	assert.Len(t, Records(doc, Tests), 1)
	assert.Empty(t, Records(doc, Revisions))
}
