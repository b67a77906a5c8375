package regime

import (
	"context"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// EnvOnnxLibrary overrides the onnxruntime shared library location.
const EnvOnnxLibrary = "ONNXRUNTIME_LIB"

// RegimeLabels is the output order of regime models.
var RegimeLabels = []string{"trend", "range", "high_vol", "low_vol"}

var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime() error {
	ortOnce.Do(func() {
		ort.SetSharedLibraryPath(libraryPath())
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

func libraryPath() string {
	if p := os.Getenv(EnvOnnxLibrary); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "/usr/lib/libonnxruntime.so"
	}
}

// OnnxClassifier runs an ONNX model with input "input" of shape [1, n]
// and output "output" of shape [1, len(labels)].
type OnnxClassifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	inputs  int
	labels  []string
}

// NewOnnxClassifier loads the model at path.
func NewOnnxClassifier(path string, inputs int, labels []string) (*OnnxClassifier, error) {
	if inputs <= 0 || len(labels) == 0 {
		return nil, errors.New("onnx classifier needs inputs and labels")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "model file %s", path)
	}
	if err := initRuntime(); err != nil {
		return nil, errors.Wrap(err, "initialize onnxruntime")
	}

	input, err := ort.NewTensor(ort.NewShape(1, int64(inputs)), make([]float32, inputs))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}
	session, err := ort.NewAdvancedSession(path,
		[]string{"input"}, []string{"output"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create onnx session")
	}

	return &OnnxClassifier{
		session: session,
		input:   input,
		output:  output,
		inputs:  inputs,
		labels:  append([]string(nil), labels...),
	}, nil
}

// Classify returns the arg-max label with the full output distribution.
func (c *OnnxClassifier) Classify(_ context.Context, features []float64) (Classification, error) {
	if len(features) != c.inputs {
		return Classification{}, errors.Errorf("model expects %d features, got %d", c.inputs, len(features))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.input.GetData()
	for i, v := range features {
		data[i] = float32(v)
	}
	if err := c.session.Run(); err != nil {
		return Classification{}, errors.Wrap(err, "onnx inference")
	}

	out := c.output.GetData()
	raw := make(map[string]float64, len(c.labels))
	best := 0
	for i, label := range c.labels {
		raw[label] = float64(out[i])
		if out[i] > out[best] {
			best = i
		}
	}
	return Classification{Label: c.labels[best], Probability: float64(out[best]), Raw: raw}, nil
}

// Close releases the session and tensors.
func (c *OnnxClassifier) Close() {
	if c.session != nil {
		c.session.Destroy()
	}
	if c.input != nil {
		c.input.Destroy()
	}
	if c.output != nil {
		c.output.Destroy()
	}
}
