//go:build !unix

package builder

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
