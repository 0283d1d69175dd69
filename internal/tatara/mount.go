package tatara

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// BindMount creates the destination directory and performs a bind mount
// using the external 'mount' binary via e.Run() to ensure proper privilege
// escalation.
func (e *Executor) BindMount(source, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", dest, err)
	}

	cmdBind := exec.Command("mount", "--bind", source, dest)
	debugf("[INFO] Running: %s\n", strings.Join(cmdBind.Args, " "))
	if err := e.Run(cmdBind); err != nil {
		return fmt.Errorf("failed to bind mount %s to %s: %w", source, dest, err)
	}

	// Private propagation keeps chroot mount events from leaking back to
	// the host tree.
	cmdPrivate := exec.Command("mount", "--make-rprivate", dest)
	if err := e.Run(cmdPrivate); err != nil {
		colWarn.Printf("Could not set mount %s to private: %v\n", dest, err)
	}

	return nil
}

// Unmount lazily unmounts a single path with the external 'umount -l'.
func (e *Executor) Unmount(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	debugf("[INFO] Unmounting: %s\n", path)
	cmdUnmount := exec.Command("umount", "-l", path)
	if err := e.Run(cmdUnmount); err != nil {
		return fmt.Errorf("failed to umount %s: %w", path, err)
	}
	return nil
}
