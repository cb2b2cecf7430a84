package roomname

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	for range 50 {
		parts := strings.Split(Generate(), "-")
		require.Len(t, parts, 3)
		assert.True(t, slices.Contains(adjectives, parts[0]))
		assert.True(t, slices.Contains(animals, parts[1]))
		assert.True(t, slices.Contains(places, parts[2]))
	}
}
