// Package tflite runs YOLO detection models exported to TensorFlow Lite.
package tflite

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/inference"
	"github.com/yardwatch/yardwatch/internal/logger"
)

// Detector wraps one TFLite interpreter. The interpreter is not safe for
// concurrent use, so Detect is serialized.
type Detector struct {
	name        string
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	labels      []string
	inputSize   int
	floor       float64
	iou         float64
	log         logger.Logger
	mu          sync.Mutex
}

// NewLoader returns an inference.Loader that opens TFLite detectors with
// the given settings.
func NewLoader(settings *conf.InferenceSettings, log logger.Logger) inference.Loader {
	if log == nil {
		log = logger.Global().Module("inference")
	}
	return inference.LoaderFunc(func(_ context.Context, modelPath string) (inference.Detector, error) {
		return Open(modelPath, settings, log)
	})
}

// Open loads the model and its labels file and allocates tensors.
func Open(modelPath string, settings *conf.InferenceSettings, log logger.Logger) (*Detector, error) {
	start := time.Now()

	labels, err := inference.ReadLabels(inference.LabelsPath(modelPath, settings.LabelsSuffix))
	if err != nil {
		return nil, modelLoadError(err, modelPath, start)
	}

	data, err := os.ReadFile(modelPath) //nolint:gosec // G304: model path comes from the detection type record
	if err != nil {
		return nil, modelLoadError(err, modelPath, start)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, modelLoadError(fmt.Errorf("cannot load TensorFlow Lite model"), modelPath, start)
	}

	threads := settings.Threads
	if threads <= 0 {
		threads = max(1, runtime.NumCPU()/2)
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		log.Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, modelLoadError(fmt.Errorf("cannot create interpreter"), modelPath, start)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, modelLoadError(fmt.Errorf("tensor allocation failed"), modelPath, start)
	}

	d := &Detector{
		name:        filepath.Base(modelPath),
		model:       model,
		options:     options,
		interpreter: interpreter,
		labels:      labels,
		floor:       settings.CandidateFloor,
		iou:         settings.IoUThreshold,
		log:         log,
	}

	input := interpreter.GetInputTensor(0)
	if input.NumDims() != 4 || input.Dim(1) != input.Dim(2) || input.Dim(3) != 3 {
		_ = d.Close()
		return nil, modelLoadError(fmt.Errorf("unsupported input shape, want [1,S,S,3]"), modelPath, start)
	}
	d.inputSize = input.Dim(1)

	log.Info("detection model loaded",
		logger.String("model", d.name),
		logger.Int("input_size", d.inputSize),
		logger.Int("classes", len(labels)),
		logger.Int("threads", threads),
		logger.Duration("load_time", time.Since(start)))
	return d, nil
}

func modelLoadError(err error, modelPath string, start time.Time) error {
	return errors.New(err).
		Component("inference").
		Category(errors.CategoryModelLoad).
		ModelContext(modelPath, filepath.Base(modelPath)).
		Timing("model-load", time.Since(start)).
		Build()
}

func (d *Detector) Name() string { return d.name }

// LowerFloor drops the candidate floor to threshold when it is lower.
func (d *Detector) LowerFloor(threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.floor = min(d.floor, max(threshold, 0))
}

// Detect runs the model on img and returns detections in img coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]inference.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.interpreter == nil {
		return nil, inference.NewInferenceError(fmt.Errorf("detector is closed"), d.name)
	}

	lb := inference.NewLetterbox(img, d.inputSize)
	lb.FillHWC(d.interpreter.GetInputTensor(0).Float32s())

	if status := d.interpreter.Invoke(); status != tflite.OK {
		return nil, inference.NewInferenceError(fmt.Errorf("tensor invoke failed: %v", status), d.name)
	}

	output := d.interpreter.GetOutputTensor(0)
	dims := make([]int, output.NumDims())
	for i := range dims {
		dims[i] = output.Dim(i)
	}
	numBoxes, channelMajor, err := inference.ParseYOLOShape(dims, len(d.labels))
	if err != nil {
		return nil, inference.NewInferenceError(err, d.name)
	}

	raw := output.Float32s()
	decoded := (&inference.YOLOOutput{
		Data:         raw,
		NumClasses:   len(d.labels),
		NumBoxes:     numBoxes,
		ChannelMajor: channelMajor,
		Normalized:   maxCoord(raw, numBoxes, channelMajor, len(d.labels)) <= 1.5,
		InputSize:    d.inputSize,
	}).Decode(d.labels, d.floor)

	kept := inference.NonMaxSuppression(decoded, d.iou)
	for i := range kept {
		kept[i].Box = lb.ToFrame(kept[i].Box, img.Bounds())
	}
	return kept, nil
}

// maxCoord samples box centers to tell normalized exports from pixel ones.
func maxCoord(raw []float32, numBoxes int, channelMajor bool, numClasses int) float32 {
	var m float32
	for i := range numBoxes {
		var cx float32
		if channelMajor {
			cx = raw[i]
		} else {
			cx = raw[i*(4+numClasses)]
		}
		m = max(m, cx)
	}
	return m
}

// Close frees the interpreter. Safe to call more than once.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.interpreter != nil {
		d.interpreter.Delete()
		d.interpreter = nil
	}
	if d.options != nil {
		d.options.Delete()
		d.options = nil
	}
	if d.model != nil {
		d.model.Delete()
		d.model = nil
	}
	return nil
}
