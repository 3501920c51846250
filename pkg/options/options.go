// Package options defines the option-group contract shared by all
// configurable components and the helpers to compose flag names.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when the
// result is non-empty, producing flag names like "store.weaviate.base-url".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions is implemented by every reusable option group.
type IOptions interface {
	// Validate returns all configuration errors found in the group.
	Validate() []error

	// AddFlags registers the group's flags, optionally nested under prefixes.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
