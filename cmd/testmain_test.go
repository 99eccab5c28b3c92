package cmd

import (
	"fmt"
	"os"
	"testing"
)

// TestMain isolates the cmd package from the developer's environment. HOME
// points at an empty directory so no user config is read, and the working
// directory has no ./plugins, so the developer override never kicks in.
func TestMain(m *testing.M) {
	os.Exit(runTests(m))
}

func runTests(m *testing.M) int {
	tmp, err := os.MkdirTemp("", "openusage-cmd-test-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer os.RemoveAll(tmp)

	os.Setenv("GO_TEST", "true")
	os.Setenv("HOME", tmp)
	os.Setenv("XDG_CONFIG_HOME", tmp)
	if err := os.Chdir(tmp); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return m.Run()
}
