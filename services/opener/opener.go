// Package opener hands a path to the operating system's default application.
package opener

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/meghashyamc/aleph/logger"
)

var ErrPathNotFound = errors.New("path not found")

// Starter starts a command without waiting for it to exit.
type Starter func(name string, args ...string) error

type Opener struct {
	logger logger.Logger
	goos   string
	start  Starter
}

func New(logger logger.Logger) *Opener {
	return &Opener{logger: logger, goos: runtime.GOOS, start: startDetached}
}

// Open launches the default handler for path and returns once the handler process has started.
func (o *Opener) Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return fmt.Errorf("could not stat %s: %w", path, err)
	}

	name, args := Command(o.goos, path)
	if err := o.start(name, args...); err != nil {
		o.logger.Error("could not open path", "path", path, "command", name, "err", err.Error())
		return fmt.Errorf("could not open %s: %w", path, err)
	}

	o.logger.Info("opened path", "path", path, "command", name)
	return nil
}

// Command returns the opener invocation for goos.
func Command(goos string, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", path}
	default:
		return "xdg-open", []string{path}
	}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// reap the child so it does not linger as a zombie
	go cmd.Wait()
	return nil
}
