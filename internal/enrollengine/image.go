package enrollengine

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"github.com/adam-mcguinness/sup-linux/internal/model"
)

// saveFrameJPEG writes frame as a grayscale JPEG at path, matching the original
// pipeline's per-capture snapshot saved alongside each enrollment.
func saveFrameJPEG(frame model.Frame, path string) error {
	img := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	copy(img.Pix, frame.Gray)

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return apperror.New(apperror.CodeStorage, err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return apperror.New(apperror.CodeStorage, err)
	}
	return nil
}
