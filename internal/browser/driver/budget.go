package driver

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// truncateTokens cuts text to at most limit tokens. When the encoding can't be
// loaded it falls back to roughly four characters per token.
func truncateTokens(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	encOnce.Do(func() {
		enc, _ = tiktoken.GetEncoding(encodingName)
	})
	if enc == nil {
		runes := []rune(text)
		if len(runes) <= limit*4 {
			return text
		}
		return string(runes[:limit*4])
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return enc.Decode(tokens[:limit])
}
