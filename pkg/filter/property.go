package filter

import (
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// propertyDeniedPattern matches bionic's property access failures:
//
//	libc    : Access denied finding property "ro.vendor.foo"
//	libc    : Unable to set property "ctl.start" to "vendor.bar"
var propertyDeniedPattern = regexp.MustCompile(`libc\s+:\s+\w+\s\w+\s\w+\s\w+\s("[\w.]+")( to "([\w.@:/-]+)")?`)

// PropertyFilter keeps property access denials. Control messages are always
// kept; a plain property is only kept the first time it shows up.
type PropertyFilter struct {
	denied sets.Set[string]
}

// NewPropertyFilter creates a libc_properties filter with its own record of
// properties already reported.
func NewPropertyFilter() *PropertyFilter {
	return &PropertyFilter{denied: sets.New[string]()}
}

func (f *PropertyFilter) Name() string { return PropertyName }

func (f *PropertyFilter) Match(line string) bool {
	m := propertyDeniedPattern.FindStringSubmatch(line)
	if m == nil {
		return false
	}

	if m[3] != "" {
		filterLog.Info("control message was unable to be set", "message", m[1], "target", m[3])
		return true
	}

	prop := m[1]
	if f.denied.Has(prop) {
		return false
	}
	f.denied.Insert(prop)
	filterLog.Info("property access denied", "property", prop)
	return true
}

// Denied returns every plain property reported so far, sorted.
func (f *PropertyFilter) Denied() []string {
	return sets.List(f.denied)
}

func (f *PropertyFilter) Render(lines []string) string {
	return strings.Join(lines, "\n")
}
