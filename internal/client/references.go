package client

import (
	"fmt"

	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

type reference struct {
	kind   string
	prefix string
	target string
}

// references lists, per referencing kind, the foreign keys to check
var references = []reference{
	{kind: models.Builds, prefix: "revision_", target: models.Revisions},
	{kind: models.Tests, prefix: "build_", target: models.Builds},
	{kind: models.Tests, prefix: "environment_", target: models.Environments},
}

// CheckReferences verifies that every record reference in doc resolves to
// a record of the referenced kind within doc itself. Records already in
// the warehouse are not consulted.
func CheckReferences(doc models.Document) error {
	known := make(map[string]map[models.Key]bool, len(models.Kinds))
	for _, kind := range models.Kinds {
		keys := make(map[models.Key]bool)
		for _, r := range models.Records(doc, kind) {
			if key, ok := models.KeyOf(r, ""); ok {
				keys[key] = true
			}
		}
		known[kind] = keys
	}

	var missing []string
	for _, ref := range references {
		for i, r := range models.Records(doc, ref.kind) {
			key, ok := models.KeyOf(r, ref.prefix)
			if !ok || known[ref.target][key] {
				continue
			}
			missing = append(missing, fmt.Sprintf("/%s/%d: %sorigin_id %q of origin %q not found in %s",
				ref.kind, i, ref.prefix, key.OriginID, key.Origin, ref.target))
		}
	}

	if len(missing) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeReferenceViolation,
		fmt.Sprintf("%d unresolved record reference(s)", len(missing))).
		WithContext("references", missing).
		WithSuggestions("Submit the referenced records in the same document, or drop --check-references")
}
