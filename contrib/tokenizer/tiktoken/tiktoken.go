// Package tiktoken implements synthesis.Tokenizer with OpenAI's BPE
// vocabularies, so prompt budgets count real tokens instead of estimating.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer wraps a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New resolves an encoding by model name ("gpt-4o-mini") or by encoding name
// ("cl100k_base").
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode returns the token ids for a text.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens returns the number of tokens in a text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}
