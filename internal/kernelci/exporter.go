// Package kernelci exports KernelCI test results from its MongoDB backend
// as an exchange-schema document
package kernelci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"kcidb/internal/ioschema"
	"kcidb/pkg/models"
)

const (
	DefaultOrigin   = "kernelci"
	DefaultDays     = 45
	DefaultMaxTests = 10000
	DefaultMaxDepth = 16
)

// DefaultExcludedLabs run no LAVA test groups
var DefaultExcludedLabs = []string{"lab-baylibre-seattle", "lab-bjorn"}

// Group names that are never exported
var skippedGroups = map[string]bool{"lava": true, "boot": true}

var (
	buildMiscKeys = []string{
		"cross_compile",
		"kernel_version",
		"kernel_config",
		"kconfig_fragments",
		"kernel_image",
		"kernel_image_size",
		"vmlinux_bss_size",
		"vmlinux_data_size",
		"vmlinux_file_size",
		"vmlinux_text_size",
		"modules_size",
		"errors",
		"warnings",
	}
	environmentMiscKeys = []string{"arch", "mach", "device_type", "dtb", "load_addr", "initrd_addr", "dtb_addr"}
)

// Options configures an Exporter
type Options struct {
	Origin       string
	Since        time.Time
	MaxTests     int
	MaxDepth     int
	ExcludedLabs []string
}

// DefaultOptions exports the last DefaultDays days
func DefaultOptions() Options {
	return Options{
		Origin:       DefaultOrigin,
		Since:        time.Now().AddDate(0, 0, -DefaultDays),
		MaxTests:     DefaultMaxTests,
		MaxDepth:     DefaultMaxDepth,
		ExcludedLabs: DefaultExcludedLabs,
	}
}

// Exporter reshapes KernelCI test groups into revisions, builds,
// environments and tests
type Exporter struct {
	store  Store
	opts   Options
	logger zerolog.Logger
}

// NewExporter creates an exporter reading from store
func NewExporter(store Store, opts Options, logger zerolog.Logger) *Exporter {
	if opts.Origin == "" {
		opts.Origin = DefaultOrigin
	}
	if opts.MaxTests <= 0 {
		opts.MaxTests = DefaultMaxTests
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Exporter{store: store, opts: opts, logger: logger}
}

// frame is a pending test group on the traversal stack
type frame struct {
	group *TestGroup
	name  string
	depth int
}

// Export walks every eligible top-level group and returns a validated
// document. It stops once MaxTests tests are collected.
func (e *Exporter) Export(ctx context.Context) (models.Document, error) {
	acc := newAccumulator()
	groups := 0

	err := e.store.WalkGroups(ctx, e.opts.Since, func(group *TestGroup) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !e.eligible(group) {
			return true, nil
		}

		if err := e.exportGroup(ctx, acc, group); err != nil {
			return false, err
		}
		groups++
		return acc.tests.len() < e.opts.MaxTests, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Int("groups", groups).
		Int("revisions", acc.revisions.len()).
		Int("builds", acc.builds.len()).
		Int("environments", acc.environments.len()).
		Int("tests", acc.tests.len()).
		Msg("Export finished")

	doc := acc.document()
	if err := ioschema.Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (e *Exporter) eligible(group *TestGroup) bool {
	if skippedGroups[group.Name] {
		return false
	}
	for _, lab := range e.opts.ExcludedLabs {
		if group.LabName == lab {
			return false
		}
	}
	return group.TopLevel()
}

func (e *Exporter) exportGroup(ctx context.Context, acc *accumulator, group *TestGroup) error {
	build, err := e.store.Build(ctx, group.BuildID)
	if err != nil {
		return err
	}
	if build == nil {
		e.logger.Warn().
			Str("group", group.ID.Hex()).
			Str("build", group.BuildID.Hex()).
			Msg("Skipping test group with missing build")
		return nil
	}

	revisionID := strings.Join([]string{build.Job, build.GitBranch, build.GitDescribe}, "/")
	if !acc.revisions.has(revisionID) {
		e.logger.Debug().Str("revision", revisionID).Msg("Adding revision")
		acc.revisions.put(revisionID, e.revisionRecord(revisionID, build, group.CreatedOn))
	}

	buildID := build.ID.Hex()
	if !acc.builds.has(buildID) {
		record := e.buildRecord(buildID, revisionID, build, group.CreatedOn)
		e.logger.Debug().Str("build", record["description"].(string)).Msg("Adding build")
		acc.builds.put(buildID, record)
	}

	environmentID := environmentOriginID(group)
	if !acc.environments.has(environmentID) {
		acc.environments.put(environmentID, e.environmentRecord(environmentID, group))
	}

	return e.walk(ctx, acc, group, buildID, environmentID)
}

// walk collects the test cases of group and of all its subgroups, depth
// first, without recursion
func (e *Exporter) walk(ctx context.Context, acc *accumulator, root *TestGroup, buildID, environmentID string) error {
	visited := map[primitive.ObjectID]bool{root.ID: true}
	stack := []frame{{group: root, name: root.Name}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, caseID := range current.group.TestCases {
			if acc.tests.len() >= e.opts.MaxTests {
				return nil
			}
			if err := e.addTest(ctx, acc, current, caseID, buildID, environmentID); err != nil {
				return err
			}
		}

		// Reverse order so the first subgroup is popped first
		for i := len(current.group.SubGroups) - 1; i >= 0; i-- {
			id := current.group.SubGroups[i]
			if visited[id] {
				e.logger.Warn().Str("group", id.Hex()).Msg("Test group already visited")
				continue
			}
			visited[id] = true

			if current.depth+1 > e.opts.MaxDepth {
				e.logger.Warn().
					Str("group", id.Hex()).
					Int("max_depth", e.opts.MaxDepth).
					Msg("Test group nested too deeply, skipping")
				continue
			}

			sub, err := e.store.Group(ctx, id)
			if err != nil {
				return err
			}
			if sub == nil {
				e.logger.Warn().Str("group", id.Hex()).Msg("Missing test group")
				continue
			}
			stack = append(stack, frame{
				group: sub,
				name:  current.name + "/" + sub.Name,
				depth: current.depth + 1,
			})
		}
	}
	return nil
}

func (e *Exporter) addTest(ctx context.Context, acc *accumulator, f frame, caseID primitive.ObjectID, buildID, environmentID string) error {
	id := caseID.Hex()
	if acc.tests.has(id) {
		e.logger.Warn().Str("test_case", id).Msg("Test case already seen")
		return nil
	}

	tc, err := e.store.Case(ctx, caseID)
	if err != nil {
		return err
	}
	if tc == nil {
		e.logger.Warn().Str("test_case", id).Msg("Missing test case")
		return nil
	}

	name := f.name + "/" + tc.Name
	e.logger.Debug().Str("test", name).Msg("Adding test")

	test := models.Record{
		"build_origin":          e.opts.Origin,
		"build_origin_id":       buildID,
		"environment_origin":    e.opts.Origin,
		"environment_origin_id": environmentID,
		"origin":                e.opts.Origin,
		"origin_id":             id,
		"description":           name,
		"misc": map[string]interface{}{
			"lab_name":       f.group.LabName,
			"board":          f.group.Board,
			"board_instance": f.group.BoardInstance,
			"boot_log":       plain(f.group.Extra["boot_log"]),
		},
	}
	if tc.Status != "" {
		test["status"] = tc.Status
	}
	acc.tests.put(id, test)
	return nil
}

func (e *Exporter) revisionRecord(id string, build *Build, created time.Time) models.Record {
	revision := models.Record{
		"origin":    e.opts.Origin,
		"origin_id": id,
		"misc": map[string]interface{}{
			"git_branch":   build.GitBranch,
			"git_describe": build.GitDescribe,
			"created_on":   timestamp(created),
		},
	}
	if build.GitURL != "" {
		revision["git_repository_url"] = build.GitURL
	}
	if build.GitCommit != "" {
		revision["git_repository_commit_hash"] = build.GitCommit
	}
	return revision
}

func (e *Exporter) buildRecord(id, revisionID string, build *Build, created time.Time) models.Record {
	misc := map[string]interface{}{
		"compiler":         build.Compiler,
		"compiler_version": build.CompilerVersion,
		"defconfig_full":   build.DefconfigFull,
	}
	for _, key := range buildMiscKeys {
		misc[key] = plain(build.Extra[key])
	}

	record := models.Record{
		"origin":             e.opts.Origin,
		"origin_id":          id,
		"revision_origin":    e.opts.Origin,
		"revision_origin_id": revisionID,
		"description": strings.Join([]string{
			build.Arch, build.DefconfigFull, build.Compiler + "-" + build.CompilerVersion,
		}, "/"),
		"valid":        build.Status == "PASS",
		"architecture": build.Arch,
		"start_time":   timestamp(created),
		"misc":         misc,
	}
	if build.BuildTime != nil && *build.BuildTime >= 0 {
		record["duration"] = *build.BuildTime
	}

	// build_log is usually a file name, which is not a valid log_url
	if u, err := url.Parse(build.BuildLog); err == nil && u.IsAbs() {
		record["log_url"] = build.BuildLog
	} else if build.BuildLog != "" {
		misc["build_log"] = build.BuildLog
	}
	return record
}

func (e *Exporter) environmentRecord(id string, group *TestGroup) models.Record {
	misc := map[string]interface{}{"board_instance": group.BoardInstance}
	for _, key := range environmentMiscKeys {
		misc[key] = plain(group.Extra[key])
	}
	if misc["dtb"] == "None" {
		misc["dtb"] = nil
	}
	return models.Record{
		"origin":      e.opts.Origin,
		"origin_id":   id,
		"description": id,
		"misc":        misc,
	}
}

func environmentOriginID(group *TestGroup) string {
	id := group.LabName + "/" + group.Board
	if group.BoardInstance != "" {
		id += "/" + group.BoardInstance
	}
	return id
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// plain converts BSON values into values encoding/json renders naturally
func plain(v interface{}) interface{} {
	switch value := v.(type) {
	case primitive.ObjectID:
		return value.Hex()
	case primitive.DateTime:
		return timestamp(value.Time())
	case time.Time:
		return timestamp(value)
	case primitive.A:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = plain(item)
		}
		return out
	case []interface{}:
		return plain(primitive.A(value))
	case primitive.D:
		out := make(map[string]interface{}, len(value))
		for _, elem := range value {
			out[elem.Key] = plain(elem.Value)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(value))
		for k, item := range value {
			out[k] = plain(item)
		}
		return out
	case map[string]interface{}:
		return plain(bson.M(value))
	default:
		return value
	}
}

// WriteDocument writes doc as indented JSON
func WriteDocument(w io.Writer, doc models.Document) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}
