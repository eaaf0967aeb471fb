package driver

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseElementsCapsLength(t *testing.T) {
	var parts []string
	for i := 0; i < maxPageMapElements+10; i++ {
		parts = append(parts, fmt.Sprintf(`{"selector":"#b%d","type":"button"}`, i))
	}
	elements, err := parseElements("[" + strings.Join(parts, ",") + "]")
	require.NoError(t, err)
	assert.Len(t, elements, maxPageMapElements)
	assert.Equal(t, "#b0", elements[0].Selector)

	_, err = parseElements("undefined")
	assert.Error(t, err)
}

func TestTruncateTokens(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	out := truncateTokens(text, 100)
	assert.Less(t, len(out), len(text))
	assert.Equal(t, text, truncateTokens(text, 0))
	assert.Equal(t, "short", truncateTokens("short", 100))
}
