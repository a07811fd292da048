package predictor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"heartify/config"
	"heartify/ml"
)

// Artifacts is one fitted classifier paired with the encoder it was
// trained behind. A pair is never mutated after it is loaded.
type Artifacts struct {
	Model   ml.Classifier
	Encoder ml.Encoder
}

// Loader deserializes a fresh pair of artifacts.
type Loader func() (*Artifacts, error)

// ArtifactSource hands a pair of artifacts to each prediction.
type ArtifactSource interface {
	Acquire(ctx context.Context) (*Artifacts, error)
	Close() error
}

// FileLoader reads the classifier and encoder from disk. Every failure
// wraps ErrArtifactLoad.
func FileLoader(modelType, modelPath, encoderPath string) Loader {
	return func() (*Artifacts, error) {
		model, err := ml.LoadModel(modelType, modelPath)
		if err != nil {
			return nil, fmt.Errorf("%w: model %s: %w", ErrArtifactLoad, modelPath, err)
		}
		enc, err := ml.LoadEncoder(encoderPath)
		if err != nil {
			return nil, fmt.Errorf("%w: encoder %s: %w", ErrArtifactLoad, encoderPath, err)
		}
		return &Artifacts{Model: model, Encoder: enc}, nil
	}
}

// NewSource builds the artifact source selected by cfg.Reload.
func NewSource(cfg config.ArtifactsConfig, logger *zap.Logger, metrics *Metrics) (ArtifactSource, error) {
	load := FileLoader(cfg.ModelType, cfg.ModelPath, cfg.EncoderPath)
	switch cfg.Reload {
	case config.ReloadPerRequest, "":
		return NewPerRequestSource(load, metrics), nil
	case config.ReloadAtStartup:
		return NewStaticSource(load, metrics)
	case config.ReloadOnChange:
		return NewWatchSource(load, []string{cfg.ModelPath, cfg.EncoderPath}, logger, metrics)
	default:
		return nil, fmt.Errorf("unknown artifact reload mode %q", cfg.Reload)
	}
}

// PerRequestSource deserializes both artifacts on every Acquire, so a
// prediction always reflects whatever is on disk at that moment.
type PerRequestSource struct {
	load    Loader
	metrics *Metrics
}

func NewPerRequestSource(load Loader, metrics *Metrics) *PerRequestSource {
	return &PerRequestSource{load: load, metrics: metrics}
}

func (s *PerRequestSource) Acquire(ctx context.Context) (*Artifacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return timedLoad(s.load, s.metrics)
}

func (s *PerRequestSource) Close() error { return nil }

// StaticSource loads once and serves the same pair for the process lifetime.
type StaticSource struct {
	artifacts *Artifacts
}

func NewStaticSource(load Loader, metrics *Metrics) (*StaticSource, error) {
	artifacts, err := timedLoad(load, metrics)
	if err != nil {
		return nil, err
	}
	return &StaticSource{artifacts: artifacts}, nil
}

func (s *StaticSource) Acquire(ctx context.Context) (*Artifacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.artifacts, nil
}

func (s *StaticSource) Close() error { return nil }

// WatchSource loads at startup and reloads when an artifact file changes.
// A failed reload keeps serving the previous pair.
type WatchSource struct {
	load     Loader
	metrics  *Metrics
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	files    map[string]bool
	current  atomic.Pointer[Artifacts]
	debounce time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewWatchSource(load Loader, paths []string, logger *zap.Logger, metrics *Metrics) (*WatchSource, error) {
	artifacts, err := timedLoad(load, metrics)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create artifact watcher: %w", err)
	}

	s := &WatchSource{
		load:     load,
		metrics:  metrics,
		logger:   logger,
		watcher:  watcher,
		files:    make(map[string]bool, len(paths)),
		debounce: 250 * time.Millisecond,
		done:     make(chan struct{}),
	}
	s.current.Store(artifacts)

	// Watch directories rather than files: writers that replace a file by
	// rename would otherwise detach the watch.
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		s.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *WatchSource) Acquire(ctx context.Context) (*Artifacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.current.Load(), nil
}

// Reload swaps in a freshly loaded pair, or keeps the old one on error.
func (s *WatchSource) Reload() error {
	artifacts, err := timedLoad(s.load, s.metrics)
	if err != nil {
		s.logger.Warn("artifact reload failed, keeping previous artifacts", zap.Error(err))
		return err
	}
	s.current.Store(artifacts)
	s.logger.Info("artifacts reloaded")
	return nil
}

func (s *WatchSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
	})
	return err
}

func (s *WatchSource) run() {
	defer s.wg.Done()

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.relevant(event) {
				continue
			}
			s.logger.Debug("artifact changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(s.debounce)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("artifact watcher error", zap.Error(err))
		case <-timer.C:
			_ = s.Reload()
		}
	}
}

func (s *WatchSource) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return s.files[abs]
}

func timedLoad(load Loader, metrics *Metrics) (*Artifacts, error) {
	start := time.Now()
	artifacts, err := load()
	metrics.observeLoad(start, err)
	return artifacts, err
}
