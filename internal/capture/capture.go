// Package capture owns the V4L2 camera session used by enrollment and authentication:
// open the device, stream MJPEG frames via ffmpeg, and hand back grayscale model.Frame
// values ready for the detector and quality scorer.
package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/logging"
	"github.com/adam-mcguinness/sup-linux/internal/model"
)

// execCommand is a var so tests can stub out the ffmpeg/v4l2-ctl subprocesses.
var execCommand = exec.Command

// ErrDeviceNotFound is returned when the configured device path does not exist.
var ErrDeviceNotFound = errors.New("capture: camera device not found")

// ErrNotOpen is returned by operations that require an opened session.
var ErrNotOpen = errors.New("capture: session not open")

// ErrNoFrame is returned when no frame could be captured.
var ErrNoFrame = errors.New("capture: no frame captured")

// ErrCaptureTimeout is returned when a single-shot capture exceeds its deadline.
var ErrCaptureTimeout = errors.New("capture: timed out waiting for frame")

const singleShotTimeout = 5 * time.Second

// Session owns one opened camera device for the lifetime of an enroll or authenticate
// request. One session is used per request; the caller closes it when done.
type Session struct {
	device string
	width  int
	height int
	fps    int

	isOpen bool

	streamCmd    *exec.Cmd
	streamStdout io.ReadCloser
	streamReader *bufio.Reader
	isStreaming  bool
}

// NewSession builds a Session from camera configuration. Open must be called before
// Capture/StartStream.
func NewSession(cfg config.CameraConfig) *Session {
	width, height, fps := cfg.Width, cfg.Height, cfg.FPS
	if width == 0 {
		width = 640
	}
	if height == 0 {
		height = 480
	}
	if fps == 0 {
		fps = 20
	}
	return &Session{device: cfg.Device, width: width, height: height, fps: fps}
}

// Open validates that the device exists and marks the session ready for capture.
func (s *Session) Open() error {
	if _, err := os.Stat(s.device); os.IsNotExist(err) {
		return apperror.New(apperror.CodeCapture, ErrDeviceNotFound)
	}
	s.isOpen = true
	logging.Component("capture").WithField("device", s.device).Info("camera session opened")
	return nil
}

// Close stops any running stream and releases the device.
func (s *Session) Close() error {
	if s.isStreaming {
		_ = s.StopStream()
	}
	s.isOpen = false
	logging.Component("capture").Debug("camera session closed")
	return nil
}

// IsOpen reports whether the session has an opened device.
func (s *Session) IsOpen() bool {
	return s.isOpen
}

// Capture grabs a single frame directly, bypassing any active stream. Used for one-off
// captures where the cost of spinning up ffmpeg per frame is acceptable.
func (s *Session) Capture() (model.Frame, error) {
	if !s.isOpen {
		return model.Frame{}, apperror.New(apperror.CodeCapture, ErrNotOpen)
	}

	tmpFile := filepath.Join(os.TempDir(), fmt.Sprintf("sup-linux-frame-%d.jpg", time.Now().UnixNano()))
	defer os.Remove(tmpFile)

	cmd := execCommand("ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
		"-i", s.device,
		"-frames:v", "1",
		"-y",
		tmpFile,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil

	done := make(chan error, 1)
	go func() { done <- cmd.Run() }()

	select {
	case err := <-done:
		if err != nil {
			return model.Frame{}, apperror.New(apperror.CodeCapture, err)
		}
	case <-time.After(singleShotTimeout):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return model.Frame{}, apperror.New(apperror.CodeCapture, ErrCaptureTimeout)
	}

	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return model.Frame{}, apperror.New(apperror.CodeCapture, err)
	}
	return decodeJPEGToFrame(data)
}

// StartStream starts an ffmpeg MJPEG stream to an internal pipe for low-latency repeated
// reads through ReadFrame. The enrollment and authentication engines do not use it; they
// call Capture for every frame.
func (s *Session) StartStream() error {
	if !s.isOpen {
		return apperror.New(apperror.CodeCapture, ErrNotOpen)
	}
	if s.isStreaming {
		return nil
	}

	cmd := execCommand("ffmpeg",
		"-f", "v4l2",
		"-framerate", fmt.Sprintf("%d", s.fps),
		"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
		"-i", s.device,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperror.New(apperror.CodeCapture, err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return apperror.New(apperror.CodeCapture, err)
	}

	s.streamCmd = cmd
	s.streamStdout = stdout
	s.streamReader = bufio.NewReaderSize(stdout, 1<<20)
	s.isStreaming = true

	logging.Component("capture").Debug("stream started")
	return nil
}

// StopStream kills the ffmpeg stream process, if any.
func (s *Session) StopStream() error {
	if !s.isStreaming {
		return nil
	}
	if s.streamCmd != nil && s.streamCmd.Process != nil {
		_ = s.streamCmd.Process.Kill()
		_ = s.streamCmd.Wait()
	}
	s.streamCmd = nil
	s.streamStdout = nil
	s.streamReader = nil
	s.isStreaming = false
	logging.Component("capture").Debug("stream stopped")
	return nil
}

// ReadFrame pulls the next JPEG frame out of the MJPEG stream by scanning for the SOI/EOI
// markers, then decodes it to a grayscale model.Frame. Falls back to Capture if no stream
// is active.
func (s *Session) ReadFrame() (model.Frame, error) {
	if !s.isStreaming {
		return s.Capture()
	}

	for {
		if _, err := s.streamReader.ReadSlice(0xFF); err != nil {
			if err == bufio.ErrBufferFull {
				continue
			}
			return model.Frame{}, apperror.New(apperror.CodeCapture, err)
		}
		b, err := s.streamReader.ReadByte()
		if err != nil {
			return model.Frame{}, apperror.New(apperror.CodeCapture, err)
		}
		if b == 0xD8 {
			break
		}
	}

	jpegData := make([]byte, 0, 50*1024)
	jpegData = append(jpegData, 0xFF, 0xD8)

	for {
		slice, err := s.streamReader.ReadSlice(0xFF)
		if err != nil {
			if err == bufio.ErrBufferFull {
				jpegData = append(jpegData, slice...)
				continue
			}
			return model.Frame{}, apperror.New(apperror.CodeCapture, err)
		}
		jpegData = append(jpegData, slice...)

		b, err := s.streamReader.ReadByte()
		if err != nil {
			return model.Frame{}, apperror.New(apperror.CodeCapture, err)
		}
		jpegData = append(jpegData, b)
		if b == 0xD9 {
			break
		}
	}

	return decodeJPEGToFrame(jpegData)
}

// ListDevices enumerates /dev/video* nodes that exist on this machine.
func ListDevices() ([]string, error) {
	devices, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, apperror.New(apperror.CodeCapture, err)
	}
	return devices, nil
}

func decodeJPEGToFrame(data []byte) (model.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Frame{}, apperror.New(apperror.CodeCapture, fmt.Errorf("decode frame: %w", err))
	}
	return toGrayFrame(img), nil
}

func toGrayFrame(img image.Image) model.Frame {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	gray := make([]byte, width*height)

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < height; y++ {
			srcOff := g.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(gray[y*width:(y+1)*width], g.Pix[srcOff:srcOff+width])
		}
		return model.Frame{Width: width, Height: height, Gray: gray, Timestamp: time.Now()}
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color16(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			gray[y*width+x] = c
		}
	}
	return model.Frame{Width: width, Height: height, Gray: gray, Timestamp: time.Now()}
}

func color16(c interface{ RGBA() (uint32, uint32, uint32, uint32) }) byte {
	r, g, b, _ := c.RGBA()
	// ITU-R 601 luma, operating on the 16-bit RGBA channels returned by image.Color.
	y := (299*r + 587*g + 114*b) / 1000
	return byte(y >> 8)
}
