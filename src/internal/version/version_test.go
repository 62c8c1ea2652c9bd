// FILE: callwisp/src/internal/version/version_test.go
package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "v1.2.3"
	assert.Equal(t, "v1.2.3", Short())
	assert.Equal(t, "CallWisp/v1.2.3", UserAgent())
	assert.Contains(t, String(), "v1.2.3 (commit: ")
}
