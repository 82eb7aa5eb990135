package main

import (
	"context"
	"flag"

	"go.viam.com/rdk/logging"

	"checkercal"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	ctx := context.Background()
	logger := logging.NewLogger("cli")

	imageDir := flag.String("image-dir", "./images", "directory with checkerboard photos")
	output := flag.String("output", "calibration_results.json", "where the calibration json goes")
	width := flag.Int("width", 7, "inner corners per checkerboard row")
	height := flag.Int("height", 10, "inner corners per checkerboard column")
	noPreview := flag.Bool("no-preview", false, "skip the undistortion preview image")
	debugDir := flag.String("debug-dir", "", "if set, write corner overlay images here")
	workers := flag.Int("workers", 0, "detection workers (0 = number of CPUs)")
	debug := flag.Bool("debug", false, "")

	flag.Parse()

	if *debug {
		logger.SetLevel(logging.DEBUG)
	}

	created, err := checkercal.EnsureImageDir(*imageDir)
	if err != nil {
		return err
	}
	if created {
		logger.Infof("created image directory %s, put your checkerboard photos there and run again", *imageDir)
		return nil
	}

	p := checkercal.NewPipeline(checkercal.Config{
		ImageDir:    *imageDir,
		OutputFile:  *output,
		BoardWidth:  *width,
		BoardHeight: *height,
		NoPreview:   *noPreview,
		DebugDir:    *debugDir,
		Workers:     *workers,
	}, logger)

	_, err = p.Run(ctx)
	return err
}
