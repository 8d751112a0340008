package service

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adam-mcguinness/sup-linux/internal/codec"
	"github.com/adam-mcguinness/sup-linux/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Service.SocketPath = filepath.Join(t.TempDir(), "service.sock")
	cfg.Camera.Device = filepath.Join(t.TempDir(), "nonexistent-video-device")
	return cfg
}

func TestListenBindsSocketWithWorldPermissions(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, nil, nil)

	if err := s.Listen(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	info, err := os.Stat(cfg.Service.SocketPath)
	if err != nil {
		t.Fatalf("expected socket file to exist: %v", err)
	}
	if info.Mode().Perm() != 0666 {
		t.Errorf("expected socket mode 0666, got %v", info.Mode().Perm())
	}
}

func TestCloseRemovesSocketFile(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, nil, nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}
	if _, err := os.Stat(cfg.Service.SocketPath); !os.IsNotExist(err) {
		t.Errorf("expected socket file to be removed, stat error: %v", err)
	}
}

func TestServeReturnsErrorResponseWhenCameraUnavailable(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, nil, nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	conn, err := net.DialTimeout("unix", cfg.Service.SocketPath, 2*time.Second)
	if err != nil {
		t.Fatalf("failed to dial test socket: %v", err)
	}
	defer conn.Close()

	req := codec.Request{Authenticate: &codec.AuthenticateRequest{Username: "alice"}}
	if err := codec.WriteFrame(conn, codec.EncodeRequest(req)); err != nil {
		t.Fatalf("failed to write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	payload, err := codec.ReadFrame(conn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	resp, err := codec.DecodeResponse(payload)
	if err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error == nil {
		t.Fatalf("expected an error response for a missing camera device, got %+v", resp)
	}
}
