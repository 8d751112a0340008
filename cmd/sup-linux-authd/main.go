// Command sup-linux-authd is the PAM-invoked authentication helper: a minimal binary that
// reads the target username from its environment, refuses on remote or headless sessions,
// and runs exactly one Authenticate request against the daemon.
package main

import (
	"fmt"
	"os"

	"github.com/adam-mcguinness/sup-linux/internal/client"
	"github.com/adam-mcguinness/sup-linux/internal/config"
)

const (
	exitSuccess    = 0
	exitAuthError  = 1
	exitServiceErr = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	username := os.Getenv("PAM_USER")
	if username == "" {
		if len(os.Args) == 2 {
			username = os.Args[1]
		} else {
			fmt.Fprintln(os.Stderr, "sup-linux-authd: no PAM_USER in environment and no username argument given")
			return exitServiceErr
		}
	}

	if reason, remote := refuseRemoteOrHeadless(); remote {
		fmt.Fprintf(os.Stderr, "sup-linux-authd: face authentication unavailable: %s\n", reason)
		return exitServiceErr
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sup-linux-authd: configuration error: %v\n", err)
		return exitServiceErr
	}
	cfg.ExpandPaths()

	fmt.Fprintf(os.Stderr, "sup-linux-authd: authenticating %s (look at the camera)...\n", username)

	c := client.New(cfg.Service.SocketPath)
	resp, err := c.Authenticate(username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sup-linux-authd: service error: %v\n", err)
		return exitServiceErr
	}

	if resp.Success {
		fmt.Fprintln(os.Stderr, "sup-linux-authd: authentication successful")
		return exitSuccess
	}

	fmt.Fprintf(os.Stderr, "sup-linux-authd: authentication failed: %s\n", resp.Message)
	return exitAuthError
}

// refuseRemoteOrHeadless reports whether this session is an SSH session or has no display,
// matching the teacher's posture that face authentication only makes sense at a physical
// console with a local camera.
func refuseRemoteOrHeadless() (reason string, refuse bool) {
	if os.Getenv("SSH_CLIENT") != "" || os.Getenv("SSH_TTY") != "" {
		return "remote (SSH) session", true
	}
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return "no display (headless session)", true
	}
	return "", false
}
