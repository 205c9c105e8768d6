package avc

import (
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr/funcr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

func TestParse_LogsSkippedAttributeAtDefaultVerbosity(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	logf.SetLogger(funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 0}))

	r, err := Parse("avc: denied { search } for garbage scontext=u:r:vold:s0 tcontext=u:object_r:sysfs:s0 tclass=dir permissive=0")
	if err != nil || !r.Live() {
		t.Fatalf("Parse = %+v, %v; want a live record", r, err)
	}

	mu.Lock()
	defer mu.Unlock()
	var found bool
	for _, l := range lines {
		if strings.Contains(l, "skipping unparsable attribute") && strings.Contains(l, "garbage") {
			found = true
		}
	}
	if !found {
		t.Errorf("no warning logged for the skipped token; got %v", lines)
	}
}
