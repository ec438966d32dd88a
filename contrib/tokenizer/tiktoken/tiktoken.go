package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and encodes text with a tiktoken encoding. CountTokens
// satisfies the token counter contract used for context window budgeting.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer resolves the encoding for a model name, falling back
// to treating the name as an encoding name (e.g. "cl100k_base").
func NewTiktokenTokenizer(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode returns the token IDs for the text.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens returns the number of tokens the text encodes to.
func (t *Tokenizer) CountTokens(text string) (int, error) {
	return len(t.Encode(text)), nil
}

// Decode reassembles text from token IDs.
func (t *Tokenizer) Decode(ids []int) string {
	return t.enc.Decode(ids)
}
