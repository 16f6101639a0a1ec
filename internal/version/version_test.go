package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Dirty
	t.Cleanup(func() { Version, Commit, Dirty = oldV, oldC, oldD })

	Version, Commit, Dirty = "", "", ""
	assert.Equal(t, "dev", String())

	Commit = "abc1234"
	assert.Equal(t, "dev-abc1234", String())

	Dirty = "dirty"
	assert.Equal(t, "dev-abc1234*", String())

	Version = "v1.0.0"
	assert.Equal(t, "v1.0.0", String())
	assert.Equal(t, "v1.0.0", Get().Version)
	assert.NotEmpty(t, Get().GoVersion)
}
