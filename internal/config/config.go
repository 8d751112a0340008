// Package config provides configuration management for the face authentication daemon.
// It loads configuration from a YAML file with sensible defaults, following the same
// shape as the rest of the authentication pipeline: a typed struct per concern, a
// DefaultConfig, a Load, and a Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon, CLI, and helper-binary configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Auth       AuthConfig       `yaml:"auth"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Storage    StorageConfig    `yaml:"storage"`
	Service    ServiceConfig    `yaml:"service"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CameraConfig holds camera device settings consumed by the capture collaborator.
type CameraConfig struct {
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

// DetectorConfig holds the face detector's ONNX model and input shape.
type DetectorConfig struct {
	ModelPath          string  `yaml:"model_path"`
	InputWidth         int     `yaml:"input_width"`
	InputHeight        int     `yaml:"input_height"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	NMSIoUThreshold    float64 `yaml:"nms_iou_threshold"`
	ExecutionProvider  string  `yaml:"execution_provider"`
}

// RecognizerConfig holds the face recognizer's ONNX model and normalization parameters.
type RecognizerConfig struct {
	ModelPath          string  `yaml:"model_path"`
	InputWidth         int     `yaml:"input_width"`
	InputHeight        int     `yaml:"input_height"`
	NormalizationMean  float64 `yaml:"normalization_mean"`
	EmbeddingDimension int     `yaml:"embedding_dimension"`
}

// AuthConfig holds the K-of-N authentication policy.
type AuthConfig struct {
	K                     int     `yaml:"k_required_matches"`
	N                     int     `yaml:"n_window_size"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold"`
	TimeoutSeconds        int     `yaml:"timeout_seconds"`
	LostFaceTimeoutMs     int     `yaml:"lost_face_timeout_ms"`
	FusionBufferSize      int     `yaml:"fusion_buffer_size"`
	UseEmbeddingFusion    bool    `yaml:"use_embedding_fusion"`
}

// EnrollmentConfig holds the enroll/enhance capture policy.
type EnrollmentConfig struct {
	TargetCount       int     `yaml:"target_count"`
	CaptureIntervalMs int     `yaml:"capture_interval_ms"`
	MinQuality        float64 `yaml:"min_quality"`
	AsciiWidth        int     `yaml:"ascii_width"`
	AsciiHeight       int     `yaml:"ascii_height"`
}

// StorageConfig holds the on-disk layout for user records and enrollment snapshots.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	EnrollmentDir string `yaml:"enrollment_dir"`
}

// ServiceConfig holds the socket path the daemon binds and the client connects to.
type ServiceConfig struct {
	SocketPath    string `yaml:"socket_path"`
	DevSocketPath string `yaml:"dev_socket_path"`
}

// LoggingConfig holds the logging level and sink.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig holds the Prometheus listen address. Empty disables metrics.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultConfig returns the default configuration, following the spec's documented
// defaults for K/N/threshold/timeout and the 4.3/4.4/4.6 constants.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Camera: CameraConfig{
			Device: "/dev/video0",
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Detector: DetectorConfig{
			ModelPath:           filepath.Join(homeDir, ".local/share/facepass/models/detector.onnx"),
			InputWidth:          320,
			InputHeight:         320,
			ConfidenceThreshold: 0.6,
			NMSIoUThreshold:     0.45,
			ExecutionProvider:   "auto",
		},
		Recognizer: RecognizerConfig{
			ModelPath:          filepath.Join(homeDir, ".local/share/facepass/models/recognizer.onnx"),
			InputWidth:         112,
			InputHeight:        112,
			NormalizationMean:  127.5,
			EmbeddingDimension: 128,
		},
		Auth: AuthConfig{
			K:                   2,
			N:                   3,
			SimilarityThreshold: 0.6,
			TimeoutSeconds:      10,
			LostFaceTimeoutMs:   1000,
			FusionBufferSize:    5,
			UseEmbeddingFusion:  true,
		},
		Enrollment: EnrollmentConfig{
			TargetCount:       5,
			CaptureIntervalMs: 2000,
			MinQuality:        0.5,
			AsciiWidth:        60,
			AsciiHeight:       25,
		},
		Storage: StorageConfig{
			DataDir:       filepath.Join(homeDir, ".local/share/facepass"),
			EnrollmentDir: filepath.Join(homeDir, ".local/share/facepass/enrollment"),
		},
		Service: ServiceConfig{
			SocketPath:    "/run/facepass/service.sock",
			DevSocketPath: "/tmp/facepass.sock",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, ".local/share/facepass/facepass.log"),
		},
		Metrics: MetricsConfig{
			ListenAddr: "",
		},
	}
}

// Load reads configuration from path, merging it onto the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadDefault tries the system config location, then falls back to built-in defaults.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("/etc/facepass/config.yaml"); err == nil {
		return Load("/etc/facepass/config.yaml")
	}
	return DefaultConfig(), nil
}

// ExpandPath expands a leading ~ and environment variables in path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks the configuration invariants the engines rely on.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("detector confidence_threshold must be in [0,1], got %f", c.Detector.ConfidenceThreshold)
	}
	if c.Auth.K <= 0 || c.Auth.N <= 0 || c.Auth.K > c.Auth.N {
		return fmt.Errorf("auth policy requires 0 < k_required_matches <= n_window_size, got K=%d N=%d", c.Auth.K, c.Auth.N)
	}
	if c.Auth.SimilarityThreshold < -1 || c.Auth.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [-1,1], got %f", c.Auth.SimilarityThreshold)
	}
	if c.Auth.TimeoutSeconds <= 0 {
		return fmt.Errorf("auth timeout_seconds must be positive, got %d", c.Auth.TimeoutSeconds)
	}
	if c.Enrollment.TargetCount <= 0 {
		return fmt.Errorf("enrollment target_count must be positive, got %d", c.Enrollment.TargetCount)
	}
	if c.Enrollment.MinQuality < 0 || c.Enrollment.MinQuality > 1 {
		return fmt.Errorf("enrollment min_quality must be in [0,1], got %f", c.Enrollment.MinQuality)
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	return nil
}

// ExpandPaths expands every path-valued field in place.
func (c *Config) ExpandPaths() {
	c.Camera.Device = ExpandPath(c.Camera.Device)
	c.Detector.ModelPath = ExpandPath(c.Detector.ModelPath)
	c.Recognizer.ModelPath = ExpandPath(c.Recognizer.ModelPath)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Storage.EnrollmentDir = ExpandPath(c.Storage.EnrollmentDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates the storage, enrollment, model, and log directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(filepath.Join(c.Storage.DataDir, "users"), 0700); err != nil {
		return fmt.Errorf("failed to create users directory: %w", err)
	}
	if err := os.MkdirAll(c.Storage.EnrollmentDir, 0700); err != nil {
		return fmt.Errorf("failed to create enrollment directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.Detector.ModelPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// UserRecordPath returns the on-disk path for a user's persisted record.
func (c *Config) UserRecordPath(username string) string {
	return filepath.Join(c.Storage.DataDir, "users", username+".bin")
}

// SocketPathFor returns the production or dev socket path.
func (c *Config) SocketPathFor(dev bool) string {
	if dev {
		return c.Service.DevSocketPath
	}
	return c.Service.SocketPath
}
