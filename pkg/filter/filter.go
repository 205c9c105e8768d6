package filter

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/android-debug-tools/bootlogger/pkg/metrics"
)

var filterLog = logf.Log.WithName("filter")

// Filter selects interesting lines from a log stream and renders the
// accumulated selection once the stream ends.
type Filter interface {
	// Name is used in output file names, e.g. "avc" or "sepolicy.gen".
	Name() string

	// Match reports whether line should be kept.
	Match(line string) bool

	// Render produces the file content for the kept lines, which are
	// passed deduplicated and sorted.
	Render(lines []string) string
}

// Accumulator is the deduplicated set of lines a filter has kept.
type Accumulator struct {
	lines sets.Set[string]
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{lines: sets.New[string]()}
}

// Add stores a line.
func (a *Accumulator) Add(line string) {
	a.lines.Insert(line)
}

// Lines returns the stored lines in sorted order.
func (a *Accumulator) Lines() []string {
	return sets.List(a.lines)
}

// Len returns the number of distinct lines stored.
func (a *Accumulator) Len() int {
	return a.lines.Len()
}

// Result is the rendered output of one filter.
type Result struct {
	// Filter is the filter name.
	Filter string

	// Content is the text to write. Never empty.
	Content string

	// Lines is the number of distinct lines the filter kept.
	Lines int
}

type entry struct {
	filter Filter
	acc    *Accumulator
}

// Chain feeds every line to an ordered list of filters, each with its own
// accumulator. A Chain belongs to a single capture task and is not safe for
// concurrent use.
type Chain struct {
	source  string
	entries []entry
}

// NewChain creates a chain for the named log source.
func NewChain(source string, filters ...Filter) *Chain {
	c := &Chain{source: source}
	for _, f := range filters {
		c.entries = append(c.entries, entry{filter: f, acc: NewAccumulator()})
	}
	return c
}

// Feed offers a line to every filter in the chain.
func (c *Chain) Feed(line string) {
	for _, e := range c.entries {
		if e.filter.Match(line) {
			e.acc.Add(line)
			metrics.FilterMatchesTotal.WithLabelValues(c.source, e.filter.Name()).Inc()
		}
	}
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	return len(c.entries)
}

// Results renders every filter that kept at least one line. Filters whose
// rendering comes out empty are omitted as well.
func (c *Chain) Results() []Result {
	var results []Result
	for _, e := range c.entries {
		if e.acc.Len() == 0 {
			continue
		}
		content := e.filter.Render(e.acc.Lines())
		if content == "" {
			filterLog.V(1).Info("filter rendered no output", "source", c.source, "filter", e.filter.Name())
			continue
		}
		results = append(results, Result{
			Filter:  e.filter.Name(),
			Content: content,
			Lines:   e.acc.Len(),
		})
	}
	return results
}

// Options configures the filters built by New.
type Options struct {
	// ExcludedDomains are substrings that hide a line from the avc filter.
	ExcludedDomains []string

	// SuppressedOperations are operations whose allow rules are never emitted.
	SuppressedOperations []string
}

// New builds a filter by name.
func New(name string, opts Options) (Filter, error) {
	switch name {
	case AVCName:
		return NewAVCFilter(opts.ExcludedDomains...), nil
	case RuleName:
		return NewRuleFilter(opts.SuppressedOperations...), nil
	case PropertyName:
		return NewPropertyFilter(), nil
	default:
		known := []string{AVCName, RuleName, PropertyName}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown filter %q (known: %s)", name, strings.Join(known, ", "))
	}
}

// NewAll builds filters for every name in order.
func NewAll(names []string, opts Options) ([]Filter, error) {
	filters := make([]Filter, 0, len(names))
	for _, n := range names {
		f, err := New(n, opts)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}
