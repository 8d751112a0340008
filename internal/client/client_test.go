package client

import (
	"net"
	"testing"
	"time"

	"github.com/adam-mcguinness/sup-linux/internal/codec"
)

func listenUnix(t *testing.T) (*net.UnixListener, string) {
	t.Helper()
	sockPath := t.TempDir() + "/client-test.sock"
	addr, err := net.ResolveUnixAddr("unix", sockPath)
	if err != nil {
		t.Fatalf("resolve addr: %v", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln, sockPath
}

func TestAuthenticateReadsTerminalFrame(t *testing.T) {
	ln, sockPath := listenUnix(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := codec.ReadFrame(conn); err != nil {
			return
		}
		resp := codec.Response{Auth: &codec.AuthResponse{Success: true, Message: "authenticated", Attempts: 2, Timestamp: time.Now()}}
		codec.WriteFrame(conn, codec.EncodeResponse(resp))
	}()

	c := New(sockPath)
	resp, err := c.Authenticate("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.Attempts != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAuthenticateSurfacesServiceError(t *testing.T) {
	ln, sockPath := listenUnix(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := codec.ReadFrame(conn); err != nil {
			return
		}
		msg := "camera unavailable"
		codec.WriteFrame(conn, codec.EncodeResponse(codec.Response{Error: &msg}))
	}()

	c := New(sockPath)
	if _, err := c.Authenticate("alice"); err == nil {
		t.Fatal("expected an error for a service-side Error response")
	}
}

func TestEnrollDrainsStreamFramesBeforeTerminal(t *testing.T) {
	ln, sockPath := listenUnix(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := codec.ReadFrame(conn); err != nil {
			return
		}

		preview := codec.StreamMessage{PreviewFrame: &codec.PreviewFrame{ASCII: "line one\nline two", Captured: 1, Total: 5}}
		codec.WriteTaggedFrame(conn, codec.TagStream, codec.EncodeStreamMessage(preview))

		status := codec.StreamMessage{StatusUpdate: &codec.StatusUpdate{Message: "hold still"}}
		codec.WriteTaggedFrame(conn, codec.TagStream, codec.EncodeStreamMessage(status))

		codec.WriteTaggedFrame(conn, codec.TagStream, codec.EncodeStreamMessage(codec.StreamMessage{Complete: true}))

		resp := codec.Response{Enroll: &codec.EnrollResponse{Success: true, Message: "enrolled"}}
		codec.WriteTaggedFrame(conn, codec.TagTerminal, codec.EncodeResponse(resp))
	}()

	c := New(sockPath)
	resp, err := c.Enroll("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.Message != "enrolled" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestEnrollRejectsUnknownFrameTag(t *testing.T) {
	ln, sockPath := listenUnix(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := codec.ReadFrame(conn); err != nil {
			return
		}
		conn.Write([]byte{0xFF, 0, 0, 0, 0})
	}()

	c := New(sockPath)
	if _, err := c.Enroll("alice"); err == nil {
		t.Fatal("expected an error for an unknown frame tag")
	}
}

func TestDialFailsWhenSocketMissing(t *testing.T) {
	c := New("/nonexistent/path/to.sock")
	if _, err := c.Authenticate("alice"); err == nil {
		t.Fatal("expected an error when the socket does not exist")
	}
}
