package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	h.t.Helper()
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// Decode parses a JSON document the way the CLI does, keeping numbers exact
func (h *TestHelper) Decode(s string) map[string]interface{} {
	h.t.Helper()
	var doc map[string]interface{}
	decoder := json.NewDecoder(strings.NewReader(s))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		h.t.Fatalf("Failed to decode document: %v", err)
	}
	return doc
}

// Normalize round-trips a value through plain JSON so documents built
// from different Go types compare equal
func (h *TestHelper) Normalize(v interface{}) interface{} {
	h.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		h.t.Fatalf("Failed to encode value: %v", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		h.t.Fatalf("Failed to decode value: %v", err)
	}
	return out
}

// SampleDocument is a small, schema-valid report covering every record kind
const SampleDocument = `{
    "version": "1",
    "revisions": [{
        "origin": "kernelci",
        "origin_id": "mainline/master/v5.4-rc1",
        "git_repository_url": "https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git",
        "git_repository_commit_hash": "54ecb8f7028c5eb3d740bb82b0f1d90f2df63c5c",
        "discovery_time": "2019-10-05T10:00:00Z",
        "misc": {"git_branch": "master"}
    }],
    "builds": [{
        "revision_origin": "kernelci",
        "revision_origin_id": "mainline/master/v5.4-rc1",
        "origin": "kernelci",
        "origin_id": "5d9328c759b5b1a3a04e6e3a",
        "architecture": "arm64",
        "valid": true,
        "start_time": "2019-10-05T12:00:00Z",
        "duration": 312.5,
        "misc": {"errors": 0, "warnings": 3}
    }],
    "environments": [{
        "origin": "kernelci",
        "origin_id": "lab-collabora/rk3399-gru-kevin",
        "description": "lab-collabora/rk3399-gru-kevin"
    }],
    "tests": [{
        "build_origin": "kernelci",
        "build_origin_id": "5d9328c759b5b1a3a04e6e3a",
        "environment_origin": "kernelci",
        "environment_origin_id": "lab-collabora/rk3399-gru-kevin",
        "origin": "kernelci",
        "origin_id": "5d9329ab59b5b1a3a04e6e5f",
        "path": "baseline.login",
        "status": "PASS",
        "waived": false,
        "misc": {"lab_name": "lab-collabora", "dtb": null}
    }]
}`
