package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckMatchesDangerousCommands(t *testing.T) {
	cases := []string{
		"clearData",
		"CLEARDATA now",
		"syncStarBundleVersions",
		"rm -rf /",
		"rm -rf --no-preserve-root /",
		":(){ :|:& };:",
	}
	for _, c := range cases {
		assert.True(t, Check(c), "expected %q to be flagged dangerous", c)
	}
}

func TestCheckAllowsOrdinaryCommands(t *testing.T) {
	cases := []string{
		`runomni /twc/util/run.pyc local`,
		`"C:\Program Files (x86)\TWC\I2\exec.exe" runPres(PresentationId="1")`,
		"rm -rf ./build",
		"echo hello",
	}
	for _, c := range cases {
		assert.False(t, Check(c), "did not expect %q to be flagged dangerous", c)
	}
}
