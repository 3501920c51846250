// Package ollamaopts provides options for the Ollama client.
package ollamaopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Ollama client configuration.
type Options struct {
	// BaseURL is the Ollama API base URL.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// EmbedModel is the model used for embeddings.
	EmbedModel string `json:"embed-model" mapstructure:"embed-model"`

	// ChatModel is the model used for answer generation.
	ChatModel string `json:"chat-model" mapstructure:"chat-model"`

	// Timeout applies to embed, tag, pull-verify and dry-run requests.
	// The generation stream itself is never bounded by it.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "nomic-embed-text",
		ChatModel:  "cas/mistral-7b-instruct-v0.3",
		Timeout:    120 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, options.Join(prefixes...)+"ollama.base-url", o.BaseURL, "Ollama API base URL.")
	fs.StringVar(&o.EmbedModel, options.Join(prefixes...)+"ollama.embed-model", o.EmbedModel, "Model used for embeddings.")
	fs.StringVar(&o.ChatModel, options.Join(prefixes...)+"ollama.chat-model", o.ChatModel, "Model used for answer generation.")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"ollama.timeout", o.Timeout, "Timeout for non-streaming Ollama requests.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("ollama base-url is required"))
	}
	if o.EmbedModel == "" {
		errs = append(errs, fmt.Errorf("ollama embed-model is required"))
	}
	if o.ChatModel == "" {
		errs = append(errs, fmt.Errorf("ollama chat-model is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ollama timeout must be positive"))
	}
	return errs
}
