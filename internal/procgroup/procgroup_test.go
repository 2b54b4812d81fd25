package procgroup

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsolateSetsAttributes(t *testing.T) {
	cmd := exec.Command("ffmpeg", "-version")
	Isolate(cmd)
	assert.NotNil(t, cmd.SysProcAttr)

	// a second call keeps the existing attributes
	attr := cmd.SysProcAttr
	Isolate(cmd)
	assert.Same(t, attr, cmd.SysProcAttr)
}
