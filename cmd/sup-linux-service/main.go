// Command sup-linux-service is the daemon: it binds the Unix socket, owns the ONNX Runtime
// sessions for the lifetime of the process, and dispatches authenticate/enroll/enhance
// requests one at a time until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/adam-mcguinness/sup-linux/internal/authengine"
	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/enrollengine"
	"github.com/adam-mcguinness/sup-linux/internal/inference"
	"github.com/adam-mcguinness/sup-linux/internal/logging"
	"github.com/adam-mcguinness/sup-linux/internal/metrics"
	"github.com/adam-mcguinness/sup-linux/internal/service"
	"github.com/adam-mcguinness/sup-linux/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	dev := flag.Bool("dev", false, "run against the development socket (the data directory is not changed)")
	devSocket := flag.String("dev-socket", "", "override the development socket path")
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sup-linux-service: configuration error: %v\n", err)
		os.Exit(1)
	}
	if *devSocket != "" {
		cfg.Service.DevSocketPath = *devSocket
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "sup-linux-service: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.SocketPath = cfg.SocketPathFor(*dev)

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "sup-linux-service: could not initialize logging: %v\n", err)
	}
	log := logging.Component("main")
	log.Infof("starting (dev=%v, socket=%s)", *dev, cfg.Service.SocketPath)

	if err := cfg.EnsureDirectories(); err != nil {
		log.WithError(err).Fatal("could not create required directories")
	}

	if err := inference.Init(""); err != nil {
		log.WithError(err).Fatal("could not initialize onnxruntime")
	}
	defer inference.Shutdown()

	detector, err := inference.NewDetector(cfg.Detector)
	if err != nil {
		log.WithError(err).Fatal("could not load detector model")
	}
	defer detector.Close()

	recognizer, err := inference.NewRecognizer(cfg.Recognizer)
	if err != nil {
		log.WithError(err).Fatal("could not load recognizer model")
	}
	defer recognizer.Close()

	fileStore, err := store.New(cfg.Storage.DataDir, cfg.Storage.EnrollmentDir)
	if err != nil {
		log.WithError(err).Fatal("could not initialize store")
	}

	auth := authengine.New(fileStore, detector, recognizer, cfg.Auth)
	enr := enrollengine.New(fileStore, detector, recognizer, cfg.Enrollment)

	srv := service.New(cfg, auth, enr)
	if err := srv.Listen(); err != nil {
		log.WithError(err).Fatal("could not bind socket")
	}

	if cfg.Metrics.ListenAddr != "" {
		go serveMetrics(cfg.Metrics.ListenAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %s, shutting down", sig)
		cancel()
	}()

	if err := srv.Serve(ctx); err != nil {
		log.WithError(err).Error("serve loop exited with error")
	}
	if err := srv.Close(); err != nil {
		log.WithError(err).Warn("error closing socket during shutdown")
	}
	log.Info("shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	cfg.ExpandPaths()
	return cfg, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Component("metrics").WithError(err).Warn("metrics listener stopped")
	}
}
