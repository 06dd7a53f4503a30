package cli

import (
	"os"
	"testing"
)

// chdir stands in for testing.T.Chdir (Go 1.24+), which the local
// toolchain lacks: it changes the working directory for the rest of the
// test and restores it, and PWD, on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	oldPWD, hadPWD := os.LookupEnv("PWD")
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			panic("testing.Chdir: " + err.Error())
		}
		if hadPWD {
			os.Setenv("PWD", oldPWD)
		} else {
			os.Unsetenv("PWD")
		}
	})
	if !os.IsPathSeparator(dir[0]) {
		if dir, err = os.Getwd(); err != nil {
			t.Fatal(err)
		}
	}
	os.Setenv("PWD", dir)
}
