// Package tokenizer provides token counting for trimming conversation
// history to a model context budget.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens using a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New creates a tokenizer for the given model or encoding name.
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by encoding name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Default returns a tokenizer using the cl100k_base encoding, a reasonable
// approximation for the chat models this service talks to.
func Default() (*Tokenizer, error) {
	return New("cl100k_base")
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
