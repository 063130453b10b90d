//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func signalStatus(state *os.ProcessState) (int, string, bool) {
	return 0, "", false
}
