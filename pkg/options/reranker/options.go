// Package rerankeropts provides options for the cross-encoder scoring client.
package rerankeropts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains reranker client configuration.
type Options struct {
	// Enabled turns second-pass re-ranking on or off. When off the
	// pipeline keeps retrieval order with neutral scores.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// BaseURL is the scoring service endpoint.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// Model is the cross-encoder model identifier, forwarded for logging
	// and for services that host more than one model.
	Model string `json:"model" mapstructure:"model"`

	// Timeout bounds one scoring call over the whole candidate batch.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxCandidates caps how many chunks are sent for scoring. Must be
	// at least the retrieval over-fetch window or trailing candidates
	// never get a model score.
	MaxCandidates int `json:"max-candidates" mapstructure:"max-candidates"`

	// MaxDocChars truncates each chunk before scoring. Cross-encoders
	// have tight input windows; scoring the head is the usual trade.
	MaxDocChars int `json:"max-doc-chars" mapstructure:"max-doc-chars"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Enabled:       true,
		BaseURL:       "http://localhost:8787",
		Model:         "cross-encoder/ms-marco-MiniLM-L-6-v2",
		Timeout:       15 * time.Second,
		MaxCandidates: 100,
		MaxDocChars:   512,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, options.Join(prefixes...)+"reranker.enabled", o.Enabled, "Enable cross-encoder re-ranking.")
	fs.StringVar(&o.BaseURL, options.Join(prefixes...)+"reranker.base-url", o.BaseURL, "Reranker service endpoint.")
	fs.StringVar(&o.Model, options.Join(prefixes...)+"reranker.model", o.Model, "Cross-encoder model identifier.")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"reranker.timeout", o.Timeout, "Scoring request timeout.")
	fs.IntVar(&o.MaxCandidates, options.Join(prefixes...)+"reranker.max-candidates", o.MaxCandidates, "Maximum candidates sent for scoring.")
	fs.IntVar(&o.MaxDocChars, options.Join(prefixes...)+"reranker.max-doc-chars", o.MaxDocChars, "Per-document character cap before scoring.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("reranker base-url is required when enabled"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("reranker timeout must be positive"))
	}
	if o.MaxCandidates <= 0 {
		errs = append(errs, fmt.Errorf("reranker max-candidates must be positive"))
	}
	if o.MaxDocChars <= 0 {
		errs = append(errs, fmt.Errorf("reranker max-doc-chars must be positive"))
	}
	return errs
}
