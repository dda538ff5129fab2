package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rollforge/internal/rules"
)

// RulesWithout returns the default ruleset source with class removed, and
// the ruleset it compiles to. It reads ../rules/dnd5e.cue, so it only works
// from packages that sit beside internal/rules.
func RulesWithout(t testing.TB, class string) (*rules.Ruleset, []byte) {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("..", "rules", "dnd5e.cue"))
	require.NoError(t, err)

	marker := fmt.Sprintf("name: %q", class)
	var kept []string
	for _, line := range strings.Split(string(src), "\n") {
		if strings.Contains(line, marker) {
			continue
		}
		kept = append(kept, line)
	}
	out := []byte(strings.Join(kept, "\n"))
	rs, err := rules.Load(out, "without-"+strings.ToLower(class)+".cue")
	require.NoError(t, err)
	_, ok := rs.Class(class)
	require.False(t, ok, "class %s still present", class)
	return rs, out
}
