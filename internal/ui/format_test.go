package ui

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

func withoutColor(t *testing.T) {
	t.Helper()
	original := supportsColor
	supportsColor = false
	t.Cleanup(func() { supportsColor = original })
}

func TestColorFunc(t *testing.T) {
	original := supportsColor
	defer func() { supportsColor = original }()

	funcs := []func(string) string{ColorSuccess, ColorError, ColorWarning, ColorInfo, ColorBold, ColorDim}

	supportsColor = true
	for _, f := range funcs {
		out := f("text")
		assert.NotEqual(t, "text", out)
		assert.Contains(t, out, "text")
	}

	supportsColor = false
	for _, f := range funcs {
		assert.Equal(t, "text", f("text"))
	}
}

func TestShowErrorPlain(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	ShowError(&buf, fmt.Errorf("dial tcp: connection refused"))

	out := buf.String()
	assert.Contains(t, out, "ERROR: dial tcp: connection refused")
	assert.Contains(t, out, "TIP: Verify your Snowflake account URL")
}

func TestShowErrorStructured(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	err := errors.LoadError(models.Builds, []string{"row 1: bad duration", "row 2: bad valid"})
	ShowError(&buf, err)

	out := buf.String()
	assert.Contains(t, out, "ERROR: [KCDB4004] ERROR: row 1: bad duration")
	assert.Contains(t, out, "  ERROR: row 2: bad valid")
	assert.Contains(t, out, "table: builds")
	assert.Contains(t, out, "errors: 2")
}

func TestShowErrorListsContext(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	err := errors.New(errors.ErrCodeReferenceViolation, "1 unresolved record reference(s)").
		WithContext("references", []string{"/tests/0: build_origin_id \"b9\" not found"}).
		WithSuggestions("Submit the referenced records")
	ShowError(&buf, err)

	out := buf.String()
	assert.Contains(t, out, "/tests/0: build_origin_id \"b9\" not found")
	assert.Contains(t, out, "TIP: Submit the referenced records")

	buf.Reset()
	violations := []string{"/builds/0/valid: expected boolean"}
	ShowError(&buf, errors.SchemaViolationError(violations))
	assert.Equal(t, 1, strings.Count(buf.String(), violations[0]), "violations already in the message are not repeated")
}

func TestShowErrorCause(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	ShowError(&buf, errors.TableNotFoundError("kernelci", "tests", fmt.Errorf("object missing")))

	out := buf.String()
	assert.Contains(t, out, "[KCDB4003] Table kernelci.tests does not exist")
	assert.Contains(t, out, "cause: object missing")
	assert.Contains(t, out, "TIP: Run 'kcidb init'")
}

func TestShowMessages(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	ShowSuccess(&buf, "Dataset initialized")
	ShowWarning(&buf, "No records")
	ShowInfo(&buf, "Loading builds")

	assert.Equal(t, "SUCCESS: Dataset initialized\nWARNING: No records\nINFO: Loading builds\n", buf.String())
}

func TestRenderSummary(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	RenderSummary(&buf, "kernelci", map[string]int{models.Builds: 3, models.Tests: 12})

	out := buf.String()
	for _, kind := range models.Kinds {
		assert.Contains(t, out, kind)
	}
	assert.Contains(t, out, "RECORDS")
	assert.Contains(t, out, "15")
	assert.Less(t, strings.Index(out, models.Revisions), strings.Index(out, models.Tests))
}

func TestGetSuggestion(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Authentication failed for user", "Check the Snowflake user"},
		{"SQL access control error: Insufficient privileges", "Ensure your role"},
		{"Table kernelci.builds does not exist", "kcidb init"},
		{"object already exists", "kcidb cleanup"},
		{"something else", ""},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := getSuggestion(tt.message)
			if tt.want == "" {
				assert.Empty(t, got)
			} else {
				assert.Contains(t, got, tt.want)
			}
		})
	}
}
