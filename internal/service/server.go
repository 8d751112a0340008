// Package service implements the daemon side of the protocol: bind a Unix domain socket,
// authorize each request against its peer credentials, and dispatch it to the
// authentication, enrollment, or enhancement engine. One connection is handled at a time;
// the camera is a singleton physical resource and there is no benefit to parallel
// inference on one device.
package service

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"github.com/adam-mcguinness/sup-linux/internal/authengine"
	"github.com/adam-mcguinness/sup-linux/internal/capture"
	"github.com/adam-mcguinness/sup-linux/internal/codec"
	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/enrollengine"
	"github.com/adam-mcguinness/sup-linux/internal/logging"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// Server owns the socket listener and the collaborators shared read-only across requests:
// the detector and recognizer ONNX sessions, the store, and the engine policies.
type Server struct {
	cfg  *config.Config
	auth *authengine.Engine
	enr  *enrollengine.Engine

	listener *net.UnixListener
}

// New builds a Server from a loaded config and the shared engines. The engines are
// constructed once by the caller (cmd/sup-linux-service) so ONNX sessions survive the
// whole daemon lifetime.
func New(cfg *config.Config, auth *authengine.Engine, enr *enrollengine.Engine) *Server {
	return &Server{cfg: cfg, auth: auth, enr: enr}
}

// Listen removes a stale socket file if present, binds the configured path, and sets
// world-accessible permissions (authorization happens per-request, not at the socket).
func (s *Server) Listen() error {
	path := s.cfg.Service.SocketPath

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperror.New(apperror.CodeProtocol, err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return apperror.New(apperror.CodeProtocol, err)
		}
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return apperror.New(apperror.CodeProtocol, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return apperror.New(apperror.CodeProtocol, err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		listener.Close()
		return apperror.New(apperror.CodeProtocol, err)
	}

	s.listener = listener
	logging.Component("service").WithField("socket", path).Info("listening")
	return nil
}

// Serve accepts connections sequentially until ctx is cancelled, at which point it closes
// the listener and returns. In-flight requests are not interrupted.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logging.Component("service").WithError(err).Error("accept failed")
				continue
			}
		}
		s.handleConnection(context.WithoutCancel(ctx), conn)
	}
}

// Close removes the socket file. Called after Serve returns during graceful shutdown.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	path := s.cfg.Service.SocketPath
	s.listener.Close()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperror.New(apperror.CodeProtocol, err)
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()
	log := logging.Component("service")

	cred, err := peerCredentialsOf(conn)
	if err != nil {
		log.WithError(err).Warn("could not read peer credentials")
		return
	}
	log.WithField("uid", cred.UID).WithField("pid", cred.PID).Debug("accepted connection")

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	payload, err := codec.ReadFrame(conn)
	if err != nil {
		log.WithError(err).Warn("failed to read request frame")
		return
	}

	req, err := codec.DecodeRequest(payload)
	if err != nil {
		s.sendErrorUntagged(conn, err)
		return
	}
	log = log.WithField("request_id", req.ID)
	log.Debug("dispatching request")

	switch {
	case req.Authenticate != nil:
		s.handleAuthenticate(ctx, conn, *req.Authenticate)
	case req.Enroll != nil:
		s.handleEnroll(ctx, conn, cred, *req.Enroll)
	case req.Enhance != nil:
		s.handleEnhance(ctx, conn, cred, *req.Enhance)
	default:
		s.sendErrorUntagged(conn, apperror.Newf(apperror.CodeProtocol, nil, "request carries no recognized variant"))
	}
}

func (s *Server) handleAuthenticate(ctx context.Context, conn *net.UnixConn, req codec.AuthenticateRequest) {
	cam := capture.NewSession(s.cfg.Camera)
	if err := cam.Open(); err != nil {
		s.sendErrorUntagged(conn, err)
		return
	}
	defer cam.Close()

	result, err := s.auth.Authenticate(ctx, cam, req.Username, req.Challenge)
	if err != nil {
		s.sendErrorUntagged(conn, err)
		return
	}

	resp := codec.Response{Auth: &codec.AuthResponse{
		Success:   result.Success,
		Message:   result.Message,
		Attempts:  result.Attempts,
		Signature: result.Signature,
		Timestamp: result.Timestamp,
	}}
	s.sendFinalUntagged(conn, resp)
}

func (s *Server) handleEnroll(ctx context.Context, conn *net.UnixConn, cred peerCredentials, req codec.EnrollRequest) {
	fail := func(err error) {
		logging.Component("service").WithError(err).Warn("request failed")
		s.sendFinal(conn, codec.Response{Enroll: &codec.EnrollResponse{Success: false, Message: errorMessage(err)}})
	}
	if err := authorize(cred, req.Username); err != nil {
		fail(err)
		return
	}

	cam := capture.NewSession(s.cfg.Camera)
	if err := cam.Open(); err != nil {
		fail(err)
		return
	}
	defer cam.Close()

	emit := s.streamEmitter(conn)
	resp, err := s.enr.Enroll(ctx, cam, req.Username, req.EnablePreview, emit)
	if err != nil {
		fail(err)
		return
	}

	if req.EnablePreview {
		s.sendStreamComplete(conn)
	}
	s.sendFinal(conn, codec.Response{Enroll: &resp})
}

func (s *Server) handleEnhance(ctx context.Context, conn *net.UnixConn, cred peerCredentials, req codec.EnhanceRequest) {
	fail := func(err error) {
		logging.Component("service").WithError(err).Warn("request failed")
		s.sendFinal(conn, codec.Response{Enhance: &codec.EnhanceResponse{Success: false, Message: errorMessage(err)}})
	}
	if err := authorize(cred, req.Username); err != nil {
		fail(err)
		return
	}

	cam := capture.NewSession(s.cfg.Camera)
	if err := cam.Open(); err != nil {
		fail(err)
		return
	}
	defer cam.Close()

	var additional uint32
	if req.AdditionalCaptures != nil {
		additional = *req.AdditionalCaptures
	}

	emit := s.streamEmitter(conn)
	resp, err := s.enr.Enhance(ctx, cam, req.Username, additional, req.ReplaceWeak, req.EnablePreview, emit)
	if err != nil {
		fail(err)
		return
	}

	if req.EnablePreview {
		s.sendStreamComplete(conn)
	}
	s.sendFinal(conn, codec.Response{Enhance: &resp})
}

// streamEmitter writes a StreamMessage as a tagged STREAM frame on conn.
func (s *Server) streamEmitter(conn *net.UnixConn) enrollengine.Emit {
	return func(msg codec.StreamMessage) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return codec.WriteTaggedFrame(conn, codec.TagStream, codec.EncodeStreamMessage(msg))
	}
}

func (s *Server) sendStreamComplete(conn *net.UnixConn) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.WriteTaggedFrame(conn, codec.TagStream, codec.EncodeStreamMessage(codec.StreamMessage{Complete: true})); err != nil {
		logging.Component("service").WithError(err).Warn("failed to send stream-complete frame")
	}
}

// sendFinal writes the tagged terminal response for a streaming request (enroll/enhance),
// which the client distinguishes from preceding STREAM frames by its TagTerminal prefix.
func (s *Server) sendFinal(conn *net.UnixConn, resp codec.Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.WriteTaggedFrame(conn, codec.TagTerminal, codec.EncodeResponse(resp)); err != nil {
		logging.Component("service").WithError(err).Warn("failed to send terminal frame")
	}
}

func (s *Server) sendError(conn *net.UnixConn, err error) {
	msg := errorMessage(err)
	logging.Component("service").WithError(err).Warn("request failed")
	s.sendFinal(conn, codec.Response{Error: &msg})
}

// sendFinalUntagged writes the terminal response for the authenticate path, which carries no
// tag byte at all: a bare length-prefixed payload, since authenticate never streams.
func (s *Server) sendFinalUntagged(conn *net.UnixConn, resp codec.Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.WriteFrame(conn, codec.EncodeResponse(resp)); err != nil {
		logging.Component("service").WithError(err).Warn("failed to send terminal frame")
	}
}

func (s *Server) sendErrorUntagged(conn *net.UnixConn, err error) {
	msg := errorMessage(err)
	logging.Component("service").WithError(err).Warn("request failed")
	s.sendFinalUntagged(conn, codec.Response{Error: &msg})
}

func errorMessage(err error) string {
	var ae *apperror.AppError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return err.Error()
}
