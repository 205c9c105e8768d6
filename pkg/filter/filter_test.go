package filter

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/android-debug-tools/bootlogger/pkg/metrics"
)

const (
	vendorDenial = `avc: denied { read } for comm="vold" name="mmcblk0" scontext=u:r:vold:s0 tcontext=u:object_r:sysfs:s0 tclass=file permissive=0`
	appDenial    = `avc: denied { read } for comm="app" scontext=u:r:untrusted_app:s0 tcontext=u:object_r:sysfs:s0 tclass=file permissive=0`
)

func TestAVCFilter_Match(t *testing.T) {
	f := NewAVCFilter(DefaultExcludedDomains...)

	tests := []struct {
		name string
		line string
		want bool
	}{
		{"vendor denial", vendorDenial, true},
		{"kernel prefixed", "[   3.1] audit: type=1400 audit(0.0:4): " + vendorDenial, true},
		{"untrusted app excluded", appDenial, false},
		{"granted ignored", strings.Replace(vendorDenial, "denied", "granted", 1), false},
		{"plain line", "init: Service 'vold' started", false},
		{"missing for", "avc: denied { read } comm=x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Match(tt.line); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAVCFilter_NoExclusions(t *testing.T) {
	if !NewAVCFilter().Match(appDenial) {
		t.Error("expected app denial to match without exclusions")
	}
}

func TestRuleFilter_Match(t *testing.T) {
	f := NewRuleFilter()

	if !f.Match(vendorDenial) {
		t.Error("expected parseable denial to match")
	}
	if f.Match("no marker here") {
		t.Error("line without marker matched")
	}

	before := testutil.ToFloat64(metrics.DenialParseErrorsTotal.WithLabelValues("missing_attribute"))
	if f.Match("avc: denied { read } for scontext=u:r:a:s0 tcontext=u:r:b:s0 tclass=file") {
		t.Error("line without permissive matched")
	}
	after := testutil.ToFloat64(metrics.DenialParseErrorsTotal.WithLabelValues("missing_attribute"))
	if after != before+1 {
		t.Errorf("parse error counter = %v, want %v", after, before+1)
	}
}

func TestRuleFilter_Render(t *testing.T) {
	f := NewRuleFilter("sys_admin")
	got := f.Render([]string{
		vendorDenial,
		strings.Replace(vendorDenial, "{ read }", "{ open }", 1),
		"avc: denied { sys_admin } for scontext=u:r:init:s0 tcontext=u:r:init:s0 tclass=capability permissive=0",
	})
	if got != "allow vold sysfs:file { open read };\n" {
		t.Errorf("Render = %q", got)
	}
}

func TestPropertyFilter_PlainPropertyOnce(t *testing.T) {
	f := NewPropertyFilter()
	line := `01-01 00:00:01.000  1234  1234 W libc    : Access denied finding property "ro.vendor.camera.id"`

	if !f.Match(line) {
		t.Fatal("first occurrence should match")
	}
	if f.Match(line) {
		t.Error("second occurrence of the same property should not match")
	}
	if !f.Match(`W libc    : Access denied finding property "persist.sys.foo"`) {
		t.Error("a different property should match")
	}

	got := f.Denied()
	if len(got) != 2 || got[0] != `"persist.sys.foo"` || got[1] != `"ro.vendor.camera.id"` {
		t.Errorf("Denied = %v", got)
	}
}

func TestPropertyFilter_ControlMessageAlwaysKept(t *testing.T) {
	f := NewPropertyFilter()
	line := `E libc    : Unable to set property "ctl.start" to "vendor.hwcomposer-2-1"`

	if !f.Match(line) || !f.Match(line) {
		t.Error("control messages should match every time")
	}
	if len(f.Denied()) != 0 {
		t.Errorf("control messages should not be recorded as plain properties: %v", f.Denied())
	}
}

func TestPropertyFilter_InstancesDoNotShareState(t *testing.T) {
	line := `W libc    : Access denied finding property "ro.foo"`
	if !NewPropertyFilter().Match(line) {
		t.Fatal("expected match")
	}
	if !NewPropertyFilter().Match(line) {
		t.Error("a fresh filter must not remember properties from another instance")
	}
}

func TestPropertyFilter_NoMatch(t *testing.T) {
	f := NewPropertyFilter()
	for _, line := range []string{
		"init: starting service",
		vendorDenial,
		`libc: Access denied finding property "x"`,
	} {
		if f.Match(line) {
			t.Errorf("unexpected match for %q", line)
		}
	}
}

func TestChain_FeedAndResults(t *testing.T) {
	chain := NewChain("logcat",
		NewAVCFilter(DefaultExcludedDomains...),
		NewRuleFilter("sys_admin"),
		NewPropertyFilter(),
	)
	if chain.Len() != 3 {
		t.Fatalf("Len = %d, want 3", chain.Len())
	}

	before := testutil.ToFloat64(metrics.FilterMatchesTotal.WithLabelValues("logcat", AVCName))

	for _, l := range []string{
		vendorDenial,
		vendorDenial,
		appDenial,
		"boring line",
	} {
		chain.Feed(l)
	}

	after := testutil.ToFloat64(metrics.FilterMatchesTotal.WithLabelValues("logcat", AVCName))
	if after != before+2 {
		t.Errorf("avc matches counter delta = %v, want 2", after-before)
	}

	results := chain.Results()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (property filter empty): %+v", len(results), results)
	}

	if results[0].Filter != AVCName || results[0].Content != vendorDenial || results[0].Lines != 1 {
		t.Errorf("avc result = %+v", results[0])
	}
	want := "allow untrusted_app sysfs:file read;\nallow vold sysfs:file read;\n"
	if results[1].Filter != RuleName || results[1].Content != want {
		t.Errorf("rule result = %+v, want content %q", results[1], want)
	}
}

func TestChain_EmptyRenderOmitted(t *testing.T) {
	chain := NewChain("dmesg", NewRuleFilter("sys_admin"))
	chain.Feed("avc: denied { sys_admin } for scontext=u:r:init:s0 tcontext=u:r:init:s0 tclass=capability permissive=0")

	if got := chain.Results(); len(got) != 0 {
		t.Errorf("expected no results when every rule is suppressed, got %+v", got)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{AVCName, RuleName, PropertyName} {
		f, err := New(name, Options{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if f.Name() != name {
			t.Errorf("Name = %q, want %q", f.Name(), name)
		}
	}

	if _, err := New("bogus", Options{}); err == nil {
		t.Error("expected error for unknown filter")
	}
}

func TestNewAll(t *testing.T) {
	fs, err := NewAll([]string{AVCName, PropertyName}, Options{ExcludedDomains: []string{"vold"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(fs) != 2 {
		t.Fatalf("got %d filters, want 2", len(fs))
	}
	if fs[0].Match(vendorDenial) {
		t.Error("configured exclusion not applied")
	}

	if _, err := NewAll([]string{AVCName, "nope"}, Options{}); err == nil {
		t.Error("expected error for unknown filter in list")
	}
}

func TestAccumulator(t *testing.T) {
	a := NewAccumulator()
	a.Add("b")
	a.Add("a")
	a.Add("b")
	if a.Len() != 2 {
		t.Errorf("Len = %d, want 2", a.Len())
	}
	if got := strings.Join(a.Lines(), ","); got != "a,b" {
		t.Errorf("Lines = %q, want a,b", got)
	}
}
