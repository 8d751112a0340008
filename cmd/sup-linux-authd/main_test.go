package main

import (
	"os"
	"testing"
)

func clearSessionEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SSH_CLIENT", "SSH_TTY", "DISPLAY", "WAYLAND_DISPLAY"} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestRefuseRemoteOrHeadlessAllowsLocalGraphicalSession(t *testing.T) {
	clearSessionEnv(t)
	os.Setenv("DISPLAY", ":0")

	if _, refuse := refuseRemoteOrHeadless(); refuse {
		t.Fatal("expected a local graphical session to be allowed")
	}
}

func TestRefuseRemoteOrHeadlessRejectsSSHSession(t *testing.T) {
	clearSessionEnv(t)
	os.Setenv("DISPLAY", ":0")
	os.Setenv("SSH_TTY", "/dev/pts/3")

	if _, refuse := refuseRemoteOrHeadless(); !refuse {
		t.Fatal("expected an SSH session to be refused")
	}
}

func TestRefuseRemoteOrHeadlessRejectsNoDisplay(t *testing.T) {
	clearSessionEnv(t)

	if _, refuse := refuseRemoteOrHeadless(); !refuse {
		t.Fatal("expected a session with no DISPLAY or WAYLAND_DISPLAY to be refused")
	}
}
