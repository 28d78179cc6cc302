package check

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"

	"github.com/lunatype/luna/pkg/syntax"
)

// TestDiagnosticsGolden checks the rendered diagnostics for each fixture
// against its golden file. Regenerate with `go test -update`.
func TestDiagnosticsGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.lua"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".lua")
		t.Run(name, func(t *testing.T) {
			src, err := os.ReadFile(file)
			require.NoError(t, err)

			chunk, err := syntax.Parse(filepath.Base(file), src)
			require.NoError(t, err)
			env, err := Check(context.Background(), chunk, Options{})
			require.NoError(t, err)

			var sb strings.Builder
			for _, d := range env.Report.Diagnostics() {
				fmt.Fprintln(&sb, d.String())
			}
			golden.Assert(t, sb.String(), name+".golden")
		})
	}
}
