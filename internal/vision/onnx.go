package vision

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
)

// ONNXProvider scores window keyframes with a local quality-head model.
type ONNXProvider struct {
	logger     zerolog.Logger
	modelPath  string
	ffmpeg     *ffmpeg.Executor
	inputShape ort.Shape
	session    *ort.DynamicAdvancedSession
}

// NewONNXProvider loads the quality model and prepares an inference session.
func NewONNXProvider(logger zerolog.Logger, exec *ffmpeg.Executor, modelPath string) (*ONNXProvider, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	sess, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"quality"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create quality session: %w", err)
	}

	logger.Info().Str("model", modelPath).Msg("quality model loaded")

	return &ONNXProvider{
		logger:     logger.With().Str("component", "vision-onnx").Logger(),
		modelPath:  modelPath,
		ffmpeg:     exec,
		inputShape: ort.NewShape(1, 3, 224, 224),
		session:    sess,
	}, nil
}

// Name returns the provider identifier
func (p *ONNXProvider) Name() string {
	return "onnx:" + filepath.Base(p.modelPath)
}

// ScoreHint extracts the window's middle frame and runs the quality head,
// converting the logit to a 0..100 score.
func (p *ONNXProvider) ScoreHint(ctx context.Context, videoPath string, window ffmpeg.WindowMetrics) (float64, error) {
	keyframeTime := window.Start + (window.End-window.Start)/2
	keyframePath := filepath.Join(os.TempDir(),
		fmt.Sprintf("hint_keyframe_%d_%d.jpg", keyframeTime.Milliseconds(), time.Now().UnixNano()))
	defer os.Remove(keyframePath)

	if err := p.ffmpeg.ExtractFrame(ctx, videoPath, keyframeTime, keyframePath); err != nil {
		return 0, fmt.Errorf("keyframe extraction failed: %w", err)
	}

	pixelTensor, err := p.preprocessImage(keyframePath)
	if err != nil {
		return 0, fmt.Errorf("image preprocessing failed: %w", err)
	}
	defer pixelTensor.Destroy()

	logitTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer logitTensor.Destroy()

	inputs := []ort.ArbitraryTensor{pixelTensor}
	outputs := []ort.ArbitraryTensor{logitTensor}
	if err := p.session.Run(inputs, outputs); err != nil {
		return 0, fmt.Errorf("quality inference failed: %w", err)
	}

	logits := logitTensor.GetData()
	if len(logits) == 0 {
		return 0, fmt.Errorf("unexpected quality tensor")
	}

	logit := float64(logits[0])
	score := 100.0 / (1.0 + math.Exp(-logit))

	p.logger.Debug().
		Dur("window_start", window.Start).
		Float64("logit", logit).
		Float64("hint", score).
		Msg("quality hint computed")

	return score, nil
}

// preprocessImage -> pixel_values (float32[1,3,224,224]) with ImageNet-style
// normalization.
func (p *ONNXProvider) preprocessImage(imagePath string) (ort.ArbitraryTensor, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	resized := resize.Resize(224, 224, img, resize.Bilinear)

	data := make([]float32, 3*224*224)
	mean := []float32{0.48145466, 0.4578275, 0.40821073}
	std := []float32{0.26862954, 0.26130258, 0.27577711}

	bounds := resized.Bounds()
	idx := 0

	for ch := 0; ch < 3; ch++ {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := resized.At(x, y).RGBA()
				var v float32
				switch ch {
				case 0:
					v = float32(r>>8) / 255.0
				case 1:
					v = float32(g>>8) / 255.0
				case 2:
					v = float32(b>>8) / 255.0
				}
				data[idx] = (v - mean[ch]) / std[ch]
				idx++
			}
		}
	}

	return ort.NewTensor(p.inputShape, data)
}

// Close releases the model session and ONNX environment
func (p *ONNXProvider) Close() error {
	if p.session != nil {
		if err := p.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}
