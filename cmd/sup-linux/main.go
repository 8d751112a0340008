// Command sup-linux is the operator-facing CLI: camera/detection smoke tests, and the
// enroll/enhance/test/visualize subcommands that talk to the daemon over its Unix socket
// (or, for visualize, directly to the on-disk store).
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/adam-mcguinness/sup-linux/internal/capture"
	"github.com/adam-mcguinness/sup-linux/internal/client"
	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/inference"
	"github.com/adam-mcguinness/sup-linux/internal/model"
	"github.com/adam-mcguinness/sup-linux/internal/store"
	"github.com/adam-mcguinness/sup-linux/internal/visualize"
)

func main() {
	dev := flag.Bool("dev", false, "use the development socket (the data directory is not changed)")
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sup-linux: configuration error: %v\n", err)
		os.Exit(1)
	}

	var runErr error
	switch args[0] {
	case "test-camera":
		runErr = cmdTestCamera(cfg)
	case "test-detection":
		runErr = cmdTestDetection(cfg)
	case "detect-camera":
		runErr = cmdDetectCamera()
	case "enroll":
		runErr = cmdEnroll(cfg, *dev, args[1:])
	case "enhance":
		runErr = cmdEnhance(cfg, *dev, args[1:])
	case "test":
		runErr = cmdTestAuth(cfg, *dev, args[1:])
	case "visualize":
		runErr = cmdVisualize(cfg, args[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "sup-linux: unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "sup-linux: %v\n", runErr)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("sup-linux - local face authentication, operator CLI")
	fmt.Println()
	fmt.Println("Usage: sup-linux [-dev] [-config FILE] <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  test-camera                          capture one frame and save it as a JPEG")
	fmt.Println("  test-detection                       capture a frame, run the detector, save an annotated JPEG")
	fmt.Println("  detect-camera                        list available video devices")
	fmt.Println("  enroll --username U                   enroll a new user through the daemon")
	fmt.Println("  enhance --username U [--additional-captures N] [--replace-weak]")
	fmt.Println("                                        add more embeddings to an existing enrollment")
	fmt.Println("  test --username U                     run one authentication attempt through the daemon")
	fmt.Println("  visualize --username U {similarity|stats|export|all}")
	fmt.Println("                                        inspect a user's stored embeddings")
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

func cmdTestCamera(cfg *config.Config) error {
	cam := capture.NewSession(cfg.Camera)
	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()

	frame, err := cam.Capture()
	if err != nil {
		return err
	}

	path := "test_capture.jpg"
	if err := saveGrayJPEG(frame, path); err != nil {
		return err
	}
	fmt.Printf("Saved test capture to %s\n", path)
	return nil
}

func cmdTestDetection(cfg *config.Config) error {
	cam := capture.NewSession(cfg.Camera)
	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()

	if err := inference.Init(""); err != nil {
		return err
	}
	defer inference.Shutdown()

	detector, err := inference.NewDetector(cfg.Detector)
	if err != nil {
		return err
	}
	defer detector.Close()

	fmt.Printf("Capturing frame from %s...\n", cfg.Camera.Device)
	frame, err := cam.Capture()
	if err != nil {
		return err
	}
	if err := saveGrayJPEG(frame, "detection_test.jpg"); err != nil {
		return err
	}
	fmt.Println("Saved original image to detection_test.jpg")

	fmt.Println("Detecting faces...")
	faces, err := detector.Detect(frame)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d face(s) above threshold %.2f\n", len(faces), cfg.Detector.ConfidenceThreshold)
	for i, f := range faces {
		fmt.Printf("  face %d: confidence %.3f\n", i+1, f.Confidence)
	}

	annotated := annotateFaces(frame, faces)
	if err := savePNGOrJPEG(annotated, "detection_annotated.jpg"); err != nil {
		return err
	}
	fmt.Println("Saved annotated image to detection_annotated.jpg")
	return nil
}

func cmdDetectCamera() error {
	devices, err := capture.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No video devices found.")
		return nil
	}
	fmt.Println("Available video devices:")
	for _, d := range devices {
		fmt.Printf("  %s\n", d)
	}
	return nil
}

func cmdEnroll(cfg *config.Config, dev bool, args []string) error {
	fs := flag.NewFlagSet("enroll", flag.ExitOnError)
	username := fs.String("username", "", "username to enroll")
	fs.Parse(args)
	if *username == "" {
		return fmt.Errorf("-username is required")
	}

	c := client.New(cfg.SocketPathFor(dev))
	resp, err := c.Enroll(*username)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Message)
	}
	fmt.Println(resp.Message)
	return nil
}

func cmdEnhance(cfg *config.Config, dev bool, args []string) error {
	fs := flag.NewFlagSet("enhance", flag.ExitOnError)
	username := fs.String("username", "", "username to enhance")
	additional := fs.Uint("additional-captures", 0, "number of additional captures (0 uses the daemon's default)")
	replaceWeak := fs.Bool("replace-weak", false, "replace the weakest existing embeddings instead of only appending")
	fs.Parse(args)
	if *username == "" {
		return fmt.Errorf("-username is required")
	}

	var additionalPtr *uint32
	if *additional > 0 {
		v := uint32(*additional)
		additionalPtr = &v
	}

	c := client.New(cfg.SocketPathFor(dev))
	resp, err := c.Enhance(*username, additionalPtr, *replaceWeak)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Message)
	}
	fmt.Printf("%s\n", resp.Message)
	fmt.Printf("Embeddings: %d -> %d (replaced: %d)\n", resp.EmbeddingsBefore, resp.EmbeddingsAfter, resp.ReplacedCount)
	return nil
}

func cmdTestAuth(cfg *config.Config, dev bool, args []string) error {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	username := fs.String("username", "", "username to authenticate")
	fs.Parse(args)
	if *username == "" {
		return fmt.Errorf("-username is required")
	}

	c := client.New(cfg.SocketPathFor(dev))
	resp, err := c.Authenticate(*username)
	if err != nil {
		return err
	}
	if resp.Success {
		fmt.Printf("SUCCESS: %s (attempts: %d)\n", resp.Message, resp.Attempts)
	} else {
		fmt.Printf("FAILED: %s (attempts: %d)\n", resp.Message, resp.Attempts)
	}
	return nil
}

func cmdVisualize(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("visualize", flag.ExitOnError)
	username := fs.String("username", "", "username to inspect")
	output := fs.String("output", "", "file path for export (defaults to stdout)")
	fs.Parse(args)
	if *username == "" {
		return fmt.Errorf("-username is required")
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("visualize requires a mode: similarity, stats, export, or all")
	}
	mode := fs.Arg(0)

	fileStore, err := store.New(cfg.Storage.DataDir, cfg.Storage.EnrollmentDir)
	if err != nil {
		return err
	}
	record, err := fileStore.Load(*username)
	if err != nil {
		return err
	}

	switch mode {
	case "similarity":
		return visualize.SimilarityMatrix(os.Stdout, record)
	case "stats":
		return visualize.Stats(os.Stdout, record)
	case "export":
		return exportCSV(record, *output)
	case "all":
		if err := visualize.SimilarityMatrix(os.Stdout, record); err != nil {
			return err
		}
		fmt.Println()
		if err := visualize.Stats(os.Stdout, record); err != nil {
			return err
		}
		fmt.Println()
		return exportCSV(record, *output)
	default:
		return fmt.Errorf("unknown visualize mode %q", mode)
	}
}

func exportCSV(record model.UserRecord, output string) error {
	if output == "" {
		return visualize.ExportCSV(os.Stdout, record)
	}
	f, err := os.Create(filepath.Clean(output))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := visualize.ExportCSV(f, record); err != nil {
		return err
	}
	fmt.Printf("Exported embeddings to %s\n", output)
	return nil
}

func saveGrayJPEG(frame model.Frame, path string) error {
	img := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	copy(img.Pix, frame.Gray)
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

func savePNGOrJPEG(img image.Image, path string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

// annotateFaces draws a hollow rectangle around each detected face, colored by confidence,
// directly onto an RGBA copy of the frame: green above 0.7, yellow above 0.5, red otherwise.
func annotateFaces(frame model.Frame, faces []model.FaceBox) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			v := frame.Gray[y*frame.Width+x]
			img.Set(x, y, color.Gray{Y: v})
		}
	}

	for _, f := range faces {
		c := color.RGBA{R: 255, G: 0, B: 0, A: 255}
		switch {
		case f.Confidence > 0.7:
			c = color.RGBA{R: 0, G: 255, B: 0, A: 255}
		case f.Confidence > 0.5:
			c = color.RGBA{R: 255, G: 255, B: 0, A: 255}
		}
		drawHollowRect(img, int(f.X1), int(f.Y1), int(f.X2), int(f.Y2), c)
	}
	return img
}

func drawHollowRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	bounds := img.Bounds()
	x1, y1 = clampPoint(x1, y1, bounds)
	x2, y2 = clampPoint(x2, y2, bounds)
	if x2 <= x1 || y2 <= y1 {
		return
	}
	for x := x1; x < x2; x++ {
		img.Set(x, y1, c)
		img.Set(x, y2-1, c)
	}
	for y := y1; y < y2; y++ {
		img.Set(x1, y, c)
		img.Set(x2-1, y, c)
	}
}

func clampPoint(x, y int, bounds image.Rectangle) (int, int) {
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if x > bounds.Max.X {
		x = bounds.Max.X
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}
	if y > bounds.Max.Y {
		y = bounds.Max.Y
	}
	return x, y
}
