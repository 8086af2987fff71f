package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	assert.Equal(t, "v1.2.3", Info{Version: "v1.2.3"}.String())
	assert.Equal(t, "v1 (0123456789ab) built 2025-01-01",
		Info{Version: "v1", Revision: "0123456789abcdef", BuildDate: "2025-01-01"}.String())
}

func TestGet_PrefersInjectedRevision(t *testing.T) {
	old := Revision
	t.Cleanup(func() { Revision = old })
	Revision = "abc"
	assert.Equal(t, "abc", Get().Revision)
}
