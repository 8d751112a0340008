// Package client implements the CLI-facing side of the protocol: connect to the daemon's
// Unix socket, send one request, and either read a single terminal frame (authenticate) or
// drive a streaming preview loop before the terminal frame arrives (enroll/enhance).
package client

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"github.com/adam-mcguinness/sup-linux/internal/codec"
	"github.com/google/uuid"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	readTimeout  = 120 * time.Second
)

// Client talks to one daemon instance over its Unix domain socket.
type Client struct {
	socketPath string
}

// New builds a Client bound to socketPath. The caller resolves dev vs. production path.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Authenticate sends an Authenticate request and returns the single terminal response.
// challenge is generated here so the caller never has to manage randomness.
func (c *Client) Authenticate(username string) (codec.AuthResponse, error) {
	conn, err := c.dial()
	if err != nil {
		return codec.AuthResponse{}, err
	}
	defer conn.Close()

	challenge, err := generateChallenge()
	if err != nil {
		return codec.AuthResponse{}, apperror.New(apperror.CodeProtocol, err)
	}

	req := codec.Request{
		ID: uuid.NewString(),
		Authenticate: &codec.AuthenticateRequest{
			Username:  username,
			Challenge: challenge,
			Timestamp: time.Now(),
		},
	}
	if err := c.send(conn, req); err != nil {
		return codec.AuthResponse{}, err
	}

	resp, err := c.readTerminal(conn)
	if err != nil {
		return codec.AuthResponse{}, err
	}
	if resp.Error != nil {
		return codec.AuthResponse{}, apperror.Newf(apperror.CodeProtocol, nil, "service error: %s", *resp.Error)
	}
	if resp.Auth == nil {
		return codec.AuthResponse{}, apperror.Newf(apperror.CodeProtocol, nil, "unexpected response type for authenticate request")
	}
	return *resp.Auth, nil
}

// Enroll sends an Enroll request with preview always on, repainting the terminal with each
// preview frame as it arrives, and returns the terminal response.
func (c *Client) Enroll(username string) (codec.EnrollResponse, error) {
	conn, err := c.dial()
	if err != nil {
		return codec.EnrollResponse{}, err
	}
	defer conn.Close()

	req := codec.Request{ID: uuid.NewString(), Enroll: &codec.EnrollRequest{Username: username, EnablePreview: true}}
	if err := c.send(conn, req); err != nil {
		return codec.EnrollResponse{}, err
	}

	resp, err := c.streamUntilTerminal(conn)
	if err != nil {
		return codec.EnrollResponse{}, err
	}
	if resp.Error != nil {
		return codec.EnrollResponse{}, apperror.Newf(apperror.CodeProtocol, nil, "service error: %s", *resp.Error)
	}
	if resp.Enroll == nil {
		return codec.EnrollResponse{}, apperror.Newf(apperror.CodeProtocol, nil, "unexpected response type for enroll request")
	}
	return *resp.Enroll, nil
}

// Enhance sends an Enhance request with preview always on and returns the terminal response.
func (c *Client) Enhance(username string, additionalCaptures *uint32, replaceWeak bool) (codec.EnhanceResponse, error) {
	conn, err := c.dial()
	if err != nil {
		return codec.EnhanceResponse{}, err
	}
	defer conn.Close()

	req := codec.Request{
		ID: uuid.NewString(),
		Enhance: &codec.EnhanceRequest{
			Username:           username,
			AdditionalCaptures: additionalCaptures,
			ReplaceWeak:        replaceWeak,
			EnablePreview:      true,
		},
	}
	if err := c.send(conn, req); err != nil {
		return codec.EnhanceResponse{}, err
	}

	resp, err := c.streamUntilTerminal(conn)
	if err != nil {
		return codec.EnhanceResponse{}, err
	}
	if resp.Error != nil {
		return codec.EnhanceResponse{}, apperror.Newf(apperror.CodeProtocol, nil, "service error: %s", *resp.Error)
	}
	if resp.Enhance == nil {
		return codec.EnhanceResponse{}, apperror.Newf(apperror.CodeProtocol, nil, "unexpected response type for enhance request")
	}
	return *resp.Enhance, nil
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return nil, apperror.Newf(apperror.CodeProtocol, err, "could not connect to service at %s", c.socketPath)
	}
	return conn, nil
}

func (c *Client) send(conn net.Conn, req codec.Request) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.WriteFrame(conn, codec.EncodeRequest(req)); err != nil {
		return apperror.New(apperror.CodeProtocol, err)
	}
	return nil
}

func (c *Client) readTerminal(conn net.Conn) (codec.Response, error) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	payload, err := codec.ReadFrame(conn)
	if err != nil {
		return codec.Response{}, apperror.New(apperror.CodeProtocol, err)
	}
	resp, err := codec.DecodeResponse(payload)
	if err != nil {
		return codec.Response{}, apperror.New(apperror.CodeProtocol, err)
	}
	return resp, nil
}

// streamUntilTerminal reads tagged frames until the terminal response arrives, repainting
// the preview area in place for each PreviewFrame and printing a separator on Complete.
func (c *Client) streamUntilTerminal(conn net.Conn) (codec.Response, error) {
	p := newPainter()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		tag, payload, err := codec.ReadTaggedFrame(conn)
		if err != nil {
			if err == io.EOF {
				return codec.Response{}, apperror.Newf(apperror.CodeProtocol, nil, "connection closed before terminal response")
			}
			return codec.Response{}, apperror.New(apperror.CodeProtocol, err)
		}

		switch tag {
		case codec.TagStream:
			msg, err := codec.DecodeStreamMessage(payload)
			if err != nil {
				return codec.Response{}, apperror.New(apperror.CodeProtocol, err)
			}
			switch {
			case msg.PreviewFrame != nil:
				p.paint(msg.PreviewFrame.ASCII)
			case msg.StatusUpdate != nil:
				// shown in the final report, not during streaming
			case msg.Complete:
				p.finish()
			}
		case codec.TagTerminal:
			resp, err := codec.DecodeResponse(payload)
			if err != nil {
				return codec.Response{}, apperror.New(apperror.CodeProtocol, err)
			}
			return resp, nil
		default:
			return codec.Response{}, apperror.Newf(apperror.CodeProtocol, nil, "unknown frame tag 0x%02x", tag)
		}
	}
}

func generateChallenge() ([]byte, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// painter repaints a multi-line ASCII preview in place, the way a terminal progress display
// redraws over itself rather than scrolling.
type painter struct {
	height int
	first  bool
}

func newPainter() *painter {
	return &painter{first: true}
}

// paint overwrites the previously printed frame with lines, moving the cursor up by the
// prior frame's height first. Each line is erased in full before the new text is
// written so a shorter new line never leaves stray characters from a longer old one.
func (p *painter) paint(ascii string) {
	lines := strings.Split(ascii, "\n")

	if p.first {
		fmt.Print("\nStarting enrollment - look at the camera:\n")
		p.first = false
	} else if p.height > 0 {
		fmt.Printf("\x1b[%dA", p.height)
	}

	for _, line := range lines {
		fmt.Print("\x1b[2K")
		fmt.Print(line)
		fmt.Print("\r\n")
	}
	p.height = len(lines)
}

func (p *painter) finish() {
	fmt.Println()
}
