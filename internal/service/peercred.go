package service

import (
	"fmt"
	"net"
	"os/user"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"golang.org/x/sys/unix"
)

// peerCredentials identifies the process on the other end of a Unix domain socket
// connection, read via SO_PEERCRED.
type peerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

func peerCredentialsOf(conn *net.UnixConn) (peerCredentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return peerCredentials{}, fmt.Errorf("service: could not obtain raw conn: %w", err)
	}

	var cred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return peerCredentials{}, err
	}
	if sockErr != nil {
		return peerCredentials{}, fmt.Errorf("service: SO_PEERCRED failed: %w", sockErr)
	}

	return peerCredentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}

// usernameForUID resolves a uid to its username via the standard passwd lookup.
func usernameForUID(uid uint32) (string, error) {
	u, err := user.LookupId(fmt.Sprintf("%d", uid))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// authorize enforces that a non-root caller may only act on their own enrollment.
// uid 0 (root) may act on any username, matching the teacher's trusted-root posture.
func authorize(cred peerCredentials, requestedUsername string) error {
	if cred.UID == 0 {
		return nil
	}
	callerName, err := usernameForUID(cred.UID)
	if err != nil {
		return apperror.Newf(apperror.CodeAuthorization, err, "could not resolve uid %d", cred.UID)
	}
	if callerName != requestedUsername {
		return apperror.Newf(apperror.CodeAuthorization, nil, "permission denied: uid %d (%s) may not act on %q", cred.UID, callerName, requestedUsername)
	}
	return nil
}
