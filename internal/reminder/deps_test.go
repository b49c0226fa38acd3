package reminder

import (
	"go/build"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The delivery engine runs in the worker process and must not link the
// language-model backends.
func TestEngineDoesNotImportLLMBackends(t *testing.T) {
	pkg, err := build.ImportDir(".", 0)
	require.NoError(t, err)
	for _, imp := range pkg.Imports {
		assert.NotEqual(t, "github.com/nhle/chattask/internal/interpreter", imp)
		assert.NotEqual(t, "github.com/nhle/chattask/internal/llm", imp)
	}
}
