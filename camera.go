package checkercal

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/mitchellh/mapstructure"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/gostream"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/rdk/utils"

	"checkercal/pinhole"
)

var UndistortCamModel = family.WithModel("undistort-cam")

func init() {
	resource.RegisterComponent(camera.API, UndistortCamModel,
		resource.Registration[camera.Camera, *UndistortCamConfig]{
			Constructor: newUndistortCam,
		},
	)
}

type UndistortCamConfig struct {
	Camera          string  `json:"camera"`
	CalibrationFile string  `json:"calibration_file"`
	Alpha           float64 `json:"alpha"` // 0 crops invalid borders, 1 keeps every source pixel
}

func (cfg *UndistortCamConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Camera == "" {
		return nil, nil, fmt.Errorf("need a camera")
	}
	if cfg.CalibrationFile == "" {
		return nil, nil, fmt.Errorf("need a calibration_file")
	}
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		return nil, nil, fmt.Errorf("alpha has to be in [0,1], got %f", cfg.Alpha)
	}
	return []string{cfg.Camera}, nil, nil
}

func newUndistortCam(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (camera.Camera, error) {
	conf, err := resource.NativeConfig[*UndistortCamConfig](rawConf)
	if err != nil {
		return nil, err
	}

	cam, err := camera.FromDependencies(deps, conf.Camera)
	if err != nil {
		return nil, err
	}

	res, err := LoadResult(conf.CalibrationFile)
	if err != nil {
		return nil, fmt.Errorf("cannot load calibration from %s: %w", conf.CalibrationFile, err)
	}
	model, err := res.Model()
	if err != nil {
		return nil, err
	}

	c := &UndistortCam{
		name:   rawConf.ResourceName(),
		conf:   conf,
		logger: logger,
		source: cam,
		model:  model,
	}
	if err := c.setAlpha(conf.Alpha); err != nil {
		return nil, err
	}
	return c, nil
}

// UndistortCam wraps a source camera and serves its frames with lens
// distortion removed, using intrinsics from a calibration artifact.
type UndistortCam struct {
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	name   resource.Name
	conf   *UndistortCamConfig
	logger logging.Logger
	source camera.Camera
	model  *pinhole.Model

	mu    sync.Mutex
	newIn pinhole.Intrinsics
}

func (c *UndistortCam) Name() resource.Name {
	return c.name
}

// setAlpha recomputes the adjusted output intrinsics for the given
// free-scaling parameter.
func (c *UndistortCam) setAlpha(alpha float64) error {
	newIn, err := c.model.OptimalIntrinsics(alpha)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.newIn = newIn
	c.mu.Unlock()
	return nil
}

func (c *UndistortCam) outputIntrinsics() pinhole.Intrinsics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newIn
}

// DoCommand accepts {"alpha": x} to retune the crop/retain tradeoff at
// runtime without rebuilding the resource.
func (c *UndistortCam) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	var req struct {
		Alpha *float64 `mapstructure:"alpha"`
	}
	if err := mapstructure.Decode(cmd, &req); err != nil {
		return nil, err
	}
	if req.Alpha == nil {
		return nil, fmt.Errorf("unknown command, supported: alpha")
	}
	if *req.Alpha < 0 || *req.Alpha > 1 {
		return nil, fmt.Errorf("alpha has to be in [0,1], got %f", *req.Alpha)
	}
	if err := c.setAlpha(*req.Alpha); err != nil {
		return nil, err
	}
	return map[string]interface{}{"alpha": *req.Alpha}, nil
}

func (c *UndistortCam) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}

func (c *UndistortCam) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	img, err := c.getUndistortedImage(ctx, extra)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, camera.ImageMetadata{}, err
	}

	return buf.Bytes(), camera.ImageMetadata{MimeType: utils.MimeTypeJPEG}, nil
}

func (c *UndistortCam) Images(ctx context.Context, filterSourceNames []string, extra map[string]interface{}) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	img, err := c.getUndistortedImage(ctx, extra)
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}

	namedImg, err := camera.NamedImageFromImage(img, c.name.Name, utils.MimeTypeJPEG, data.Annotations{})
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}

	return []camera.NamedImage{namedImg}, resource.ResponseMetadata{}, nil
}

func (c *UndistortCam) Stream(ctx context.Context, errHandlers ...gostream.ErrorHandler) (gostream.VideoStream, error) {
	return gostream.NewEmbeddedVideoStreamFromReader(gostream.VideoReaderFunc(func(ctx context.Context) (image.Image, func(), error) {
		img, err := c.getUndistortedImage(ctx, nil)
		if err != nil {
			return nil, nil, err
		}
		return img, func() {}, nil
	})), nil
}

func (c *UndistortCam) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	return nil, fmt.Errorf("NextPointCloud not supported")
}

func (c *UndistortCam) Properties(ctx context.Context) (camera.Properties, error) {
	newIn := c.outputIntrinsics()
	intrinsics := &transform.PinholeCameraIntrinsics{
		Width:  newIn.Width,
		Height: newIn.Height,
		Fx:     newIn.Fx,
		Fy:     newIn.Fy,
		Ppx:    newIn.Cx,
		Ppy:    newIn.Cy,
	}
	return camera.Properties{
		SupportsPCD:      false,
		ImageType:        camera.ColorStream,
		IntrinsicParams:  intrinsics,
		DistortionParams: nil, // output frames already have distortion removed
	}, nil
}

func (c *UndistortCam) getUndistortedImage(ctx context.Context, extra map[string]interface{}) (image.Image, error) {
	imgs, _, err := c.source.Images(ctx, nil, extra)
	if err != nil {
		return nil, err
	}
	if len(imgs) == 0 {
		return nil, fmt.Errorf("no images from source camera")
	}

	srcImg, err := imgs[0].Image(ctx)
	if err != nil {
		return nil, err
	}

	newIn := c.outputIntrinsics()
	out, err := c.model.Undistort(srcImg, &newIn)
	if err != nil {
		return nil, fmt.Errorf("failed to undistort: %w", err)
	}
	return out, nil
}

var _ camera.Camera = (*UndistortCam)(nil)
