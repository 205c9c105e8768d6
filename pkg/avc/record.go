// Package avc parses SELinux access vector cache messages found in kernel
// and logcat output into structured records.
package avc

import (
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/android-debug-tools/bootlogger/pkg/selinux"
)

var parseLog = logf.Log.WithName("avc")

const (
	// Marker is the substring that introduces an AVC message.
	Marker = "avc:"

	verdictGranted = "granted"
	verdictDenied  = "denied"

	keyScontext   = "scontext"
	keyTcontext   = "tcontext"
	keyTclass     = "tclass"
	keyPermissive = "permissive"
)

// RuleKey identifies the policy rule a record describes. Records that share
// a key can be merged into one allow statement.
type RuleKey struct {
	Granted bool
	Subject selinux.Context
	Target  selinux.Context
	Class   string
}

// Record is one parsed AVC message.
type Record struct {
	// Granted is true for "granted" messages and false for "denied" ones.
	Granted bool

	// Operations are the permissions inside the "{ ... }" block.
	Operations sets.Set[string]

	// Subject and Target are the scontext= and tcontext= labels.
	Subject selinux.Context
	Target  selinux.Context

	// Class is the tclass= object class (file, binder, ...).
	Class string

	// Attributes holds every other key=value pair (name, dev, ino, comm, ...).
	Attributes map[string]string

	// Permissive is the permissive= flag.
	Permissive bool

	// Void marks a record that failed to parse or was merged into another
	// record. Void records are never merged or rendered.
	Void bool

	// Line is the raw text the record was parsed from.
	Line string
}

// Key returns the rule key of the record.
func (r *Record) Key() RuleKey {
	return RuleKey{
		Granted: r.Granted,
		Subject: r.Subject,
		Target:  r.Target,
		Class:   r.Class,
	}
}

// Live reports whether the record carries usable information.
func (r *Record) Live() bool {
	return r != nil && !r.Void && r.Operations.Len() > 0
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.Operations = r.Operations.Clone()
	out.Attributes = make(map[string]string, len(r.Attributes))
	for k, v := range r.Attributes {
		out.Attributes[k] = v
	}
	return &out
}

// Parse decomposes a line of the form
//
//	avc: denied { read write } for comm="foo" scontext=... tcontext=... tclass=file permissive=0
//
// into a Record. Text before the "avc:" marker is ignored. On failure the
// returned record is void and the error is a *ParseError.
func Parse(line string) (*Record, error) {
	r := &Record{
		Void:       true,
		Operations: sets.New[string](),
		Attributes: map[string]string{},
		Line:       line,
	}

	idx := strings.Index(line, Marker)
	if idx < 0 {
		return r, &ParseError{Reason: ErrNoMarker}
	}
	tokens := strings.Fields(line[idx:])

	// tokens[0] is the marker itself.
	pos := 1
	if pos >= len(tokens) {
		return r, &ParseError{Reason: ErrUnknownVerdict}
	}
	switch tokens[pos] {
	case verdictGranted:
		r.Granted = true
	case verdictDenied:
		r.Granted = false
	default:
		return r, &ParseError{Reason: ErrUnknownVerdict, Detail: tokens[pos]}
	}
	pos++

	// Opening brace.
	pos++
	for ; pos < len(tokens) && tokens[pos] != "}"; pos++ {
		r.Operations.Insert(tokens[pos])
	}
	if pos >= len(tokens) {
		return r, &ParseError{Reason: ErrUnterminatedOperationList}
	}
	if r.Operations.Len() == 0 {
		return r, &ParseError{Reason: ErrEmptyOperationList}
	}
	pos++

	if pos >= len(tokens) || tokens[pos] != "for" || pos+1 >= len(tokens) {
		return r, &ParseError{Reason: ErrMissingForClause}
	}
	pos++

	for _, tok := range tokens[pos:] {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			parseLog.Info("skipping unparsable attribute", "token", tok)
			continue
		}
		r.Attributes[key] = trimQuotes(value)
	}

	scontext, err := r.take(keyScontext)
	if err != nil {
		return r, err
	}
	tcontext, err := r.take(keyTcontext)
	if err != nil {
		return r, err
	}
	tclass, err := r.take(keyTclass)
	if err != nil {
		return r, err
	}
	permissive, err := r.take(keyPermissive)
	if err != nil {
		return r, err
	}

	r.Subject = selinux.ParseContext(scontext)
	r.Target = selinux.ParseContext(tcontext)
	r.Class = tclass

	switch n, convErr := strconv.Atoi(permissive); {
	case convErr == nil && n == 0:
		r.Permissive = false
	case convErr == nil && n == 1:
		r.Permissive = true
	default:
		return r, &ParseError{Reason: ErrInvalidPermissiveValue, Detail: permissive}
	}

	r.Void = false
	return r, nil
}

// take removes a required attribute and returns its value.
func (r *Record) take(key string) (string, error) {
	v, ok := r.Attributes[key]
	if !ok {
		return "", &ParseError{Reason: ErrMissingRequiredAttribute, Detail: key}
	}
	delete(r.Attributes, key)
	return v, nil
}

// trimQuotes strips one layer of double quotes around a non-empty value.
func trimQuotes(s string) string {
	if len(s) > 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
