package inference

import (
	"fmt"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/model"
	ort "github.com/yalue/onnxruntime_go"
)

// Recognizer crops, resizes and embeds a detected face through a single-channel ONNX
// recognition model.
type Recognizer struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputSize  int
	mean       float32
	embedDim   int
}

// NewRecognizer loads the recognizer ONNX model described by cfg.
func NewRecognizer(cfg config.RecognizerConfig) (*Recognizer, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("inspect recognizer model: %w", err))
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("recognizer model exposes no input/output tensors"))
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, apperror.New(apperror.CodeModel, err)
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("create recognizer session: %w", err))
	}

	return &Recognizer{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		inputSize:  cfg.InputWidth,
		mean:       float32(cfg.NormalizationMean),
		embedDim:   cfg.EmbeddingDimension,
	}, nil
}

// Close releases the underlying ONNX session.
func (r *Recognizer) Close() {
	if r.session != nil {
		r.session.Destroy()
	}
}

// Embed crops face out of frame, resizes it to the model's input size, and returns the
// resulting embedding vector. The model takes a single grayscale channel, normalized by
// the configured mean, per original_source's ArcFace-style preprocessing.
func (r *Recognizer) Embed(frame model.Frame, face model.FaceBox) (model.Embedding, error) {
	crop := cropGray(frame, face, r.inputSize, r.mean)

	inputShape := ort.NewShape(1, 1, int64(r.inputSize), int64(r.inputSize))
	inputTensor, err := ort.NewTensor(inputShape, crop)
	if err != nil {
		return nil, apperror.New(apperror.CodeModel, err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := r.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("run recognizer: %w", err))
	}
	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("unexpected recognizer output tensor type"))
	}
	defer outTensor.Destroy()

	data := outTensor.GetData()
	embedding := make(model.Embedding, len(data))
	copy(embedding, data)
	return embedding, nil
}

// cropGray crops face out of frame's grayscale plane, resizes (nearest-neighbor) to
// size x size, and normalizes as (pixel - mean) / mean.
func cropGray(frame model.Frame, face model.FaceBox, size int, mean float32) []float32 {
	x1 := clampInt(int(face.X1), 0, frame.Width)
	y1 := clampInt(int(face.Y1), 0, frame.Height)
	x2 := clampInt(int(face.X2), 0, frame.Width)
	y2 := clampInt(int(face.Y2), 0, frame.Height)
	cropW := x2 - x1
	cropH := y2 - y1
	if cropW <= 0 {
		cropW = 1
	}
	if cropH <= 0 {
		cropH = 1
	}

	if mean == 0 {
		mean = 128
	}
	out := make([]float32, size*size)
	for y := 0; y < size; y++ {
		srcY := y1 + y*cropH/size
		for x := 0; x < size; x++ {
			srcX := x1 + x*cropW/size
			if srcY >= frame.Height {
				srcY = frame.Height - 1
			}
			if srcX >= frame.Width {
				srcX = frame.Width - 1
			}
			v := float32(frame.Gray[srcY*frame.Width+srcX])
			out[y*size+x] = (v - mean) / mean
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
