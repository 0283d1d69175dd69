package tatara

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// needsRootPrivileges checks if any of the requested operations require root.
// Chroot provisioning, bind mounts and teardown all go through the root
// executor, so every build invocation needs credentials up front even when
// the decision policy later picks cross-compilation for every architecture.
func needsRootPrivileges(args []string) bool {
	if len(args) < 1 {
		return false
	}

	rootCommands := map[string]bool{
		"build": true,
		"b":     true,
		"clean": true,
	}
	return rootCommands[args[0]]
}

// authenticateOnce performs a single authentication check at program start.
func authenticateOnce() error {
	if os.Geteuid() == 0 {
		return nil // Already root
	}

	cmd := exec.Command("sudo", "-v")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sudo authentication failed: %w", err)
	}

	// Keep the sudo timestamp fresh for long builds
	go func() {
		ticker := time.NewTicker(4 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			exec.Command("sudo", "-nv").Run()
		}
	}()

	colArrow.Print("-> ")
	colSuccess.Println("Authenticated via sudo")
	return nil
}
