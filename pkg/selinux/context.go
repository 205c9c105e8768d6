package selinux

import "regexp"

// contextPattern matches Android security contexts such as
// "u:object_r:system_file:s0" and "u:r:init:s0:c512,c768".
var contextPattern = regexp.MustCompile(`^u:(object_)?r:([\w-]+):s0(.*)?$`)

// Context is an SELinux security context reduced to its domain (type) field.
type Context struct {
	domain string
}

// ParseContext extracts the domain from a raw security context string.
// Strings that do not look like an Android context are kept verbatim.
func ParseContext(raw string) Context {
	if m := contextPattern.FindStringSubmatch(raw); m != nil {
		return Context{domain: m[2]}
	}
	return Context{domain: raw}
}

// Domain returns the extracted domain.
func (c Context) Domain() string {
	return c.domain
}

func (c Context) String() string {
	return c.domain
}

// Equal reports whether both contexts carry the same domain.
func (c Context) Equal(other Context) bool {
	return c.domain == other.domain
}
