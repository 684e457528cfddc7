package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/hwdecoder"
	"github.com/xaionaro-go/hwdecoder/config"
	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/hardware/libav"
	"github.com/xaionaro-go/hwdecoder/parser/h264"
	"github.com/xaionaro-go/hwdecoder/pool"
	"github.com/xaionaro-go/hwdecoder/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/typing"
	"go.uber.org/atomic"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [options] <input.h264|->\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	codec := types.CodecIDH264
	pflag.Var(&codec, "codec", "the codec of the input stream")
	deviceType := types.HardwareDeviceTypeNone
	pflag.Var(&deviceType, "device-type", "libav hardware device type ('none' decodes in software)")
	deviceName := pflag.String("device-name", "", "hardware device name, empty for the default one")
	cropString := pflag.String("crop", "", "crop rectangle 'left,top,right,bottom'")
	resizeString := pflag.String("resize", "", "output size 'WxH'")
	snapshotDir := pflag.String("snapshot-dir", "", "a directory to save luma snapshots to")
	snapshotEvery := pflag.Int("snapshot-every", 100, "save a snapshot every N frames")
	statsInterval := pflag.Duration("stats-interval", time.Second, "how often to print statistics, zero to disable")
	pflag.Parse()
	if len(pflag.Args()) != 1 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)
	libav.RedirectLogs(l)

	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			l.Fatal(err)
		}
	}
	if pflag.CommandLine.Changed("codec") {
		cfg.Codec = codec
	}
	if pflag.CommandLine.Changed("device-type") {
		cfg.DeviceType = deviceType
	}
	if pflag.CommandLine.Changed("device-name") {
		cfg.DeviceName = types.HardwareDeviceName(*deviceName)
	}
	sessCfg, err := cfg.ToSessionConfig()
	if err != nil {
		l.Fatal(err)
	}
	if *cropString != "" {
		var crop types.Rect
		if err := crop.Parse(*cropString); err != nil {
			l.Fatal(err)
		}
		sessCfg.Crop = typing.Opt(crop)
	}
	if *resizeString != "" {
		var resize types.Resolution
		if err := resize.Parse(*resizeString); err != nil {
			l.Fatal(err)
		}
		sessCfg.Resize = typing.Opt(resize)
	}

	input, err := openInput(pflag.Arg(0))
	if err != nil {
		l.Fatal(err)
	}
	defer input.Close()

	device, err := libav.NewDevice(ctx, cfg.DeviceType, cfg.DeviceName, cfg.DeviceOptions)
	if err != nil {
		l.Fatal(err)
	}
	defer device.Close(ctx)

	sess, err := hwdecoder.New(ctx, device, hardware.ParserFactoryFunc(h264.NewParser), sessCfg)
	if err != nil {
		l.Fatal(err)
	}
	defer sess.Close(ctx)

	var totalBytes atomic.Uint64
	var totalFrames uint64
	if *statsInterval > 0 {
		observability.Go(ctx, func(ctx context.Context) {
			t := time.NewTicker(*statsInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					printStats(sess, totalBytes.Load())
				}
			}
		})
	}

	onFrames := func(frames []*pool.Buffer) {
		g := sess.Geometry()
		for _, frame := range frames {
			totalFrames++
			totalBytes.Add(uint64(frame.Size))
			if *snapshotDir == "" || *snapshotEvery <= 0 || totalFrames%uint64(*snapshotEvery) != 1 {
				continue
			}
			path := filepath.Join(*snapshotDir, fmt.Sprintf("frame_%08d.png", totalFrames))
			if err := saveLuma(path, frame, g.Width, g.LumaHeight); err != nil {
				l.Errorf("unable to save the snapshot: %v", err)
				continue
			}
			l.Debugf("saved %s (ts %d)", path, frame.Timestamp)
		}
	}

	buf := make([]byte, cfg.ReadChunkSize)
	var chunkIdx int64
	for {
		n, readErr := io.ReadFull(input, buf)
		if n > 0 {
			frames, _, err := sess.Decode(ctx, buf[:n], 0, chunkIdx)
			if err != nil {
				if errors.Is(err, hwdecoder.ErrSessionUnusable) {
					l.Fatal(err)
				}
				l.Errorf("unable to decode chunk #%d: %v", chunkIdx, err)
			}
			onFrames(frames)
			chunkIdx++
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
				l.Fatal(readErr)
			}
			break
		}
	}

	frames, _, err := sess.Decode(ctx, nil, hardware.PacketFlagEndOfStream, chunkIdx)
	if err != nil {
		l.Error(err)
	}
	onFrames(frames)
	printStats(sess, totalBytes.Load())
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	return f, nil
}

func printStats(sess *hwdecoder.Session, totalBytes uint64) {
	stats := sess.Stats()
	fmt.Printf(
		"state:%s decoded:%d displayed:%d corrupt:%d errors:%d (not ready:%d) reconfigurations:%d output:%s buffers:%d (discarded:%d)\n",
		sess.State(),
		stats.PicturesDecoded, stats.PicturesDisplayed, stats.PicturesCorrupt,
		stats.PictureErrors, stats.PicturesNotReady, stats.Reconfigurations,
		humanize.Bytes(totalBytes),
		stats.Pool.Allocated, stats.Pool.Discarded,
	)
}

func saveLuma(path string, frame *pool.Buffer, width, height int) error {
	if frame.Residency != types.BufferResidencyHost {
		return fmt.Errorf("the frame is not in host memory")
	}
	if width*height == 0 || frame.Pitch < width || len(frame.Data) < (height-1)*frame.Pitch+width {
		return fmt.Errorf("the frame does not match %dx%d", width, height)
	}
	img := &image.Gray{
		Pix:    frame.Data,
		Stride: frame.Pitch,
		Rect:   image.Rect(0, 0, width, height),
	}
	return imgio.Save(path, img, imgio.PNGEncoder())
}
