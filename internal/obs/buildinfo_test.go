package obs

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCommit(t *testing.T) {
	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs", Value: "git"},
			{Key: "vcs.revision", Value: "4f2a9c1e7b3d5a60c8e1f2d3"},
		}}, true
	}
	missing := func() (*debug.BuildInfo, bool) { return nil, false }

	assert.Equal(t, "abc123", resolveCommit("abc123", stamped))
	assert.Equal(t, "4f2a9c1e7b3d", resolveCommit("dev", stamped))
	assert.Equal(t, "4f2a9c1e7b3d", resolveCommit("", stamped))
	assert.Equal(t, "dev", resolveCommit("dev", missing))
	assert.Equal(t, "unknown", resolveCommit("", missing))
}
