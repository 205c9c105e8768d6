package filter

import (
	"regexp"
	"strings"

	"github.com/android-debug-tools/bootlogger/pkg/avc"
	"github.com/android-debug-tools/bootlogger/pkg/metrics"
	"github.com/android-debug-tools/bootlogger/pkg/sepolicy"
)

const (
	AVCName      = "avc"
	RuleName     = "sepolicy.gen"
	PropertyName = "libc_properties"
)

// DefaultExcludedDomains hides app denials from the avc filter; they are
// noisy and rarely actionable for a device tree.
var DefaultExcludedDomains = []string{"untrusted_app"}

// avcDeniedPattern matches "avc: denied { ioctl } for comm=...".
var avcDeniedPattern = regexp.MustCompile(`avc:\s+denied\s+\{(\s\w+)+\s\}\sfor\s`)

// AVCFilter keeps raw AVC denial lines.
type AVCFilter struct {
	excluded []string
}

// NewAVCFilter creates an avc filter that drops lines containing any of the
// excluded substrings.
func NewAVCFilter(excluded ...string) *AVCFilter {
	return &AVCFilter{excluded: excluded}
}

func (f *AVCFilter) Name() string { return AVCName }

func (f *AVCFilter) Match(line string) bool {
	if !avcDeniedPattern.MatchString(line) {
		return false
	}
	for _, ex := range f.excluded {
		if strings.Contains(line, ex) {
			return false
		}
	}
	return true
}

func (f *AVCFilter) Render(lines []string) string {
	return strings.Join(lines, "\n")
}

// RuleFilter keeps parseable AVC lines and renders them as allow rules.
type RuleFilter struct {
	renderer *sepolicy.Renderer
}

// NewRuleFilter creates a sepolicy.gen filter.
func NewRuleFilter(suppressed ...string) *RuleFilter {
	return &RuleFilter{renderer: sepolicy.NewRenderer(suppressed...)}
}

func (f *RuleFilter) Name() string { return RuleName }

func (f *RuleFilter) Match(line string) bool {
	if !strings.Contains(line, avc.Marker) {
		return false
	}
	rec, err := avc.Parse(line)
	if err != nil {
		metrics.DenialParseErrorsTotal.WithLabelValues(avc.ReasonLabel(err)).Inc()
		filterLog.Info("failed to parse avc line", "reason", avc.ReasonLabel(err), "error", err.Error(), "line", line)
		return false
	}
	return rec.Live()
}

func (f *RuleFilter) Render(lines []string) string {
	return f.renderer.Generate(lines)
}
