// Package weaviateopts provides options for the Weaviate client.
package weaviateopts

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Weaviate client configuration.
type Options struct {
	// BaseURL is the Weaviate HTTP endpoint, scheme included.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `json:"-" mapstructure:"api-key"`

	// Timeout bounds every store query and mutation.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, options.Join(prefixes...)+"weaviate.base-url", o.BaseURL, "Weaviate HTTP endpoint.")
	fs.StringVar(&o.APIKey, options.Join(prefixes...)+"weaviate.api-key", o.APIKey, "Weaviate API key (optional).")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"weaviate.timeout", o.Timeout, "Weaviate request timeout.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("weaviate base-url is required"))
	} else if !strings.HasPrefix(o.BaseURL, "http://") && !strings.HasPrefix(o.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("weaviate base-url must include a scheme: %q", o.BaseURL))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("weaviate timeout must be positive"))
	}
	return errs
}
