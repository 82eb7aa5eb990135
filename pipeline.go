package checkercal

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"checkercal/calib"
	"checkercal/chessboard"
)

// Stage names the pipeline's progress for logging and tests.
type Stage string

const (
	StageIdle       = Stage("idle")
	StageLoading    = Stage("loading")
	StageDetecting  = Stage("detecting")
	StageSolving    = Stage("solving")
	StageEvaluating = Stage("evaluating")
	StageSucceeded  = Stage("succeeded")
	StageFailed     = Stage("failed")
)

// imagePatterns are the supported raster extensions, tried in this order;
// listing groups files by pattern the same way the directory glob does.
var imagePatterns = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}

// Config is the calibration run configuration. Flag parsing belongs to the
// caller; the pipeline only consumes the resolved values.
type Config struct {
	ImageDir    string
	OutputFile  string
	BoardWidth  int
	BoardHeight int
	NoPreview   bool
	PreviewFile string
	DebugDir    string // when set, corner overlay images are written here
	Workers     int
	Detection   chessboard.Config
}

func (c Config) withDefaults() Config {
	if c.ImageDir == "" {
		c.ImageDir = "./images"
	}
	if c.OutputFile == "" {
		c.OutputFile = "calibration_results.json"
	}
	if c.BoardWidth == 0 {
		c.BoardWidth = 7
	}
	if c.BoardHeight == 0 {
		c.BoardHeight = 10
	}
	if c.PreviewFile == "" {
		c.PreviewFile = "undistortion_preview.png"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return c
}

// Pipeline runs the whole calibration flow: list images, detect and refine
// corners per image on a worker pool, solve jointly, evaluate, and emit
// the artifact plus an optional undistortion preview.
type Pipeline struct {
	conf   Config
	logger logging.Logger

	mu    sync.Mutex
	stage Stage

	sink PreviewSink
}

// NewPipeline validates nothing ahead of time; errors surface from Run.
func NewPipeline(conf Config, logger logging.Logger) *Pipeline {
	p := &Pipeline{conf: conf.withDefaults(), logger: logger, stage: StageIdle}
	if !p.conf.NoPreview {
		p.sink = &FilePreview{Path: p.conf.PreviewFile, Logger: logger}
	}
	return p
}

// SetPreviewSink replaces the default file-based preview destination. The
// pipeline never blocks on the sink and a sink failure never fails a run.
func (p *Pipeline) SetPreviewSink(s PreviewSink) {
	p.sink = s
}

// Stage reports how far the pipeline got.
func (p *Pipeline) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

func (p *Pipeline) setStage(s Stage) {
	p.mu.Lock()
	p.stage = s
	p.mu.Unlock()
}

// detection is the per-image worker output, indexed by input order so the
// correspondence set is reproducible run to run.
type detection struct {
	points        []r2.Point
	width, height int
	err           error
}

// Run executes the pipeline to completion. On success the artifact has
// been assembled (and written, unless persisting failed, which only logs)
// and is returned. Any fatal condition moves the pipeline to StageFailed
// and returns an error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	target, err := calib.NewTarget(p.conf.BoardWidth, p.conf.BoardHeight)
	if err != nil {
		p.setStage(StageFailed)
		return nil, err
	}

	p.setStage(StageLoading)
	p.logger.Infof("starting camera calibration")
	p.logger.Infof("image directory: %s", p.conf.ImageDir)
	p.logger.Infof("output file: %s", p.conf.OutputFile)
	p.logger.Infof("checkerboard size: %dx%d", target.Width, target.Height)

	paths, err := listImages(p.conf.ImageDir)
	if err != nil {
		p.setStage(StageFailed)
		return nil, err
	}
	if len(paths) == 0 {
		p.setStage(StageFailed)
		return nil, fmt.Errorf("no images found in directory %q with supported extensions %v", p.conf.ImageDir, imagePatterns)
	}
	p.logger.Infof("found %d images", len(paths))

	p.setStage(StageDetecting)
	results := p.detectAll(ctx, paths, target)

	obs, width, height, skipErr := p.collect(paths, results, target)
	if len(obs) == 0 {
		p.setStage(StageFailed)
		return nil, multierr.Append(fmt.Errorf("no checkerboard corners were detected in any image"), skipErr)
	}

	p.setStage(StageSolving)
	p.logger.Infof("performing camera calibration with %d image(s) where corners were found", len(obs))
	sol, err := calib.Calibrate(target, obs, width, height)
	if err != nil {
		p.setStage(StageFailed)
		return nil, fmt.Errorf("camera calibration failed: %w", err)
	}
	if !sol.Converged {
		p.setStage(StageFailed)
		return nil, fmt.Errorf("camera calibration failed: optimization did not converge")
	}

	p.setStage(StageEvaluating)
	p.logSolution(sol)

	res := NewResult(sol, target)
	if err := res.Save(p.conf.OutputFile); err != nil {
		// persisting is best-effort: numerically the calibration succeeded
		p.logger.Errorf("could not write calibration results to %s: %v", p.conf.OutputFile, err)
	} else {
		p.logger.Infof("calibration results saved to %s", p.conf.OutputFile)
	}

	if p.sink != nil {
		p.showUndistorted(paths[0], sol)
	}

	p.setStage(StageSucceeded)
	return res, nil
}

// detectAll fans the per-image detection out over a bounded worker pool.
// Images share no mutable state, so the only coordination is writing each
// result into its own slot.
func (p *Pipeline) detectAll(ctx context.Context, paths []string, target *calib.Target) []detection {
	results := make([]detection, len(paths))
	sem := make(chan struct{}, p.conf.Workers)
	var wg sync.WaitGroup
	for i, path := range paths {
		if ctx.Err() != nil {
			results[i].err = ctx.Err()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		idx, imgPath := i, path
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = p.detectOne(imgPath, target)
		})
	}
	wg.Wait()
	return results
}

func (p *Pipeline) detectOne(path string, target *calib.Target) detection {
	img, err := imaging.Open(path)
	if err != nil {
		return detection{err: fmt.Errorf("could not read image: %w", err)}
	}
	gray := chessboard.ToGray(img)
	bounds := gray.Bounds()

	corners, err := chessboard.FindCorners(gray, target.Width, target.Height, p.conf.Detection)
	if err != nil {
		return detection{width: bounds.Dx(), height: bounds.Dy(), err: err}
	}
	refined := chessboard.RefineCorners(gray, corners)

	if p.conf.DebugDir != "" {
		p.saveOverlay(path, img, refined, target)
	}
	return detection{points: refined, width: bounds.Dx(), height: bounds.Dy()}
}

// collect builds the ordered correspondence set from the per-image results,
// logging each outcome the way the run progresses image by image.
func (p *Pipeline) collect(paths []string, results []detection, target *calib.Target) ([]calib.Observation, int, int, error) {
	var obs []calib.Observation
	var skipErr error
	width, height := 0, 0
	for i, det := range results {
		name := filepath.Base(paths[i])
		p.logger.Infof("processing image %d/%d: %s", i+1, len(paths), name)
		if det.err != nil {
			p.logger.Warnf("  -> skipping %s: %v", name, det.err)
			skipErr = multierr.Append(skipErr, fmt.Errorf("%s: %w", name, det.err))
			continue
		}
		if width == 0 {
			width, height = det.width, det.height
		} else if det.width != width || det.height != height {
			p.logger.Warnf("  -> skipping %s: image size %dx%d differs from %dx%d", name, det.width, det.height, width, height)
			continue
		}
		p.logger.Infof("  -> checkerboard found and corners refined for %s", name)
		obs = append(obs, calib.Observation{Image: name, Points: det.points})
	}
	return obs, width, height, skipErr
}

func (p *Pipeline) logSolution(sol *calib.Solution) {
	in := sol.Model.Intrinsics
	p.logger.Infof("calibration successful")
	p.logger.Infof("camera matrix: fx=%.4f fy=%.4f cx=%.4f cy=%.4f", in.Fx, in.Fy, in.Cx, in.Cy)
	p.logger.Infof("distortion coefficients: %v", sol.Model.Distortion.Coefficients())
	p.logger.Infof("mean reprojection error: %f", sol.MeanError)
	if len(sol.PerImageError) > 1 {
		med, _ := stats.Median(sol.PerImageError)
		worst, _ := stats.Max(sol.PerImageError)
		p.logger.Debugf("per-image reprojection error: median=%.4f worst=%.4f", med, worst)
	}
}

// showUndistorted demonstrates the solved model on the first image of the
// set, handing a before/after pair to the preview sink. All failures here
// are logged and absorbed; the calibration already succeeded.
func (p *Pipeline) showUndistorted(path string, sol *calib.Solution) {
	img, err := imaging.Open(path)
	if err != nil {
		p.logger.Warnf("cannot load %s for undistortion preview: %v", path, err)
		return
	}
	model := sol.Model
	newIn, err := model.OptimalIntrinsics(1.0)
	if err != nil {
		p.logger.Warnf("cannot compute adjusted camera matrix: %v", err)
		return
	}
	after, err := model.Undistort(img, &newIn)
	if err != nil {
		p.logger.Warnf("cannot undistort %s: %v", path, err)
		return
	}
	if err := p.sink.Preview(img, after); err != nil {
		p.logger.Warnf("preview failed: %v", err)
	}
}

func (p *Pipeline) saveOverlay(path string, img image.Image, corners []r2.Point, target *calib.Target) {
	overlay := DrawCorners(img, corners, target.Width, target.Height)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(p.conf.DebugDir, base+"_corners.png")
	if err := imaging.Save(overlay, out); err != nil {
		p.logger.Warnf("could not save corner overlay %s: %v", out, err)
	}
}

// listImages returns the calibration images in the directory,
// non-recursively, grouped by extension pattern and sorted within each
// group so enumeration order is stable.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read image directory %q: %w", dir, err)
	}
	byExt := make(map[string][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		byExt[ext] = append(byExt[ext], filepath.Join(dir, e.Name()))
	}
	var out []string
	for _, ext := range imagePatterns {
		group := byExt[ext]
		sort.Strings(group)
		out = append(out, group...)
	}
	return out, nil
}

// EnsureImageDir creates the image directory when it is missing, so a
// first-time user has somewhere to drop their board photos. It reports
// whether the directory had to be created.
func EnsureImageDir(dir string) (bool, error) {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%q exists and is not a directory", dir)
		}
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("could not create image directory %q: %w", dir, err)
	}
	return true, nil
}
