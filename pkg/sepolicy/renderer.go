// Package sepolicy renders aggregated AVC records as sepolicy allow rules.
package sepolicy

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/android-debug-tools/bootlogger/pkg/aggregator"
	"github.com/android-debug-tools/bootlogger/pkg/avc"
)

var renderLog = logf.Log.WithName("sepolicy")

// DefaultSuppressed lists operations whose rules are never emitted.
var DefaultSuppressed = []string{"sys_admin"}

// Renderer turns records into allow statements.
type Renderer struct {
	suppressed sets.Set[string]
}

// NewRenderer creates a renderer that drops every record containing one of
// the given operations. Call with DefaultSuppressed for the stock behavior.
func NewRenderer(suppress ...string) *Renderer {
	return &Renderer{suppressed: sets.New(suppress...)}
}

// Suppressed returns the sorted suppression list.
func (r *Renderer) Suppressed() []string {
	return sets.List(r.suppressed)
}

// Rule renders a single record. It returns false for void records, records
// without operations and records touching a suppressed operation.
func (r *Renderer) Rule(rec *avc.Record) (string, bool) {
	if !rec.Live() {
		return "", false
	}
	if rec.Operations.HasAny(r.suppressed.UnsortedList()...) {
		return "", false
	}

	prefix := fmt.Sprintf("allow %s %s:%s", rec.Subject, rec.Target, rec.Class)
	ops := sets.List(rec.Operations)
	if len(ops) == 1 {
		return fmt.Sprintf("%s %s;", prefix, ops[0]), true
	}
	return fmt.Sprintf("%s { %s };", prefix, strings.Join(ops, " ")), true
}

// Render renders every record, collapses identical lines and returns them
// sorted, one rule per line with a trailing newline each.
func (r *Renderer) Render(records []*avc.Record) string {
	lines := sets.New[string]()
	for _, rec := range records {
		if rule, ok := r.Rule(rec); ok {
			lines.Insert(rule + "\n")
		}
	}
	return strings.Join(sets.List(lines), "")
}

// Generate runs the whole pipeline over raw log lines: duplicate lines are
// dropped, the rest parsed, merged by rule key and rendered.
func (r *Renderer) Generate(lines []string) string {
	agg := aggregator.New()
	for _, line := range sets.List(sets.New(lines...)) {
		rec, err := avc.Parse(line)
		if err != nil {
			renderLog.Info("failed to parse avc line", "reason", avc.ReasonLabel(err), "error", err.Error(), "line", line)
			continue
		}
		agg.Add(rec)
	}
	return r.Render(agg.Records())
}
