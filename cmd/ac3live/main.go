package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/hmcalister/ac3live/cmd/ac3live/config"
	"github.com/hmcalister/ac3live/internal/alsa"
	"github.com/hmcalister/ac3live/internal/alsactl"
	"github.com/hmcalister/ac3live/internal/capture"
	"github.com/hmcalister/ac3live/internal/encoder"
	"github.com/hmcalister/ac3live/internal/pipeline"
	"github.com/hmcalister/ac3live/internal/sink"
	"github.com/hmcalister/ac3live/internal/utils"
)

func buildSink() (sink.Sink, func(), error) {
	release := func() {}

	switch mode := viper.GetString("output"); mode {
	case "stream":
		return sink.NewStream(os.Stdout), release, nil

	case "alsa":
		// The guard is best-effort and scoped to this output mode only.
		guard := alsactl.Setup(viper.GetString("ieccard"), viper.GetString("iecindex"))
		release = guard.Release

		device, err := alsa.Open(viper.GetString("alsadevice"), slog.Default())
		if err != nil {
			release()
			return nil, nil, err
		}
		alsaRelease := func() {
			device.Close()
			guard.Release()
		}
		return sink.NewALSADirect(device), alsaRelease, nil

	default:
		if mode != "playback" {
			slog.Warn("unknown output mode, falling back to playback", "output", mode)
		}
		target := sink.ResolveTarget(viper.GetString("target"))
		return sink.NewPlayback(target), release, nil
	}
}

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	flag.Parse()

	config.LoadConfig(*configFilePath)
	logFilePointer, err := utils.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
	)
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		panic(err)
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	slog.Info("starting ac3live",
		"output", viper.GetString("output"),
		"target", viper.GetString("target"),
		"bufferFrames", viper.GetInt("bufferframes"),
	)

	// --------------------------------------------------------------------------------

	outputSink, releaseSink, err := buildSink()
	if err != nil {
		slog.Error("could not construct output sink", "err", err)
		os.Exit(1)
	}
	defer releaseSink()

	var source capture.Source
	if inputFile := viper.GetString("inputfile"); inputFile != "" {
		fileSource, err := capture.NewFileSource(inputFile, 20*time.Millisecond)
		if err != nil {
			slog.Error("could not open input file", "inputFile", inputFile, "err", err)
			os.Exit(1)
		}
		source = fileSource
	}

	p, err := pipeline.New(pipeline.Options{
		BufferFrames:  viper.GetInt("bufferframes"),
		ByteRingBytes: viper.GetInt("byteringbytes"),
		Encoder: encoder.Config{
			ThreadQueueSize:   viper.GetInt("encoderqueuesize"),
			FeederChunkFrames: viper.GetInt("feederchunkframes"),
			ProfileLatency:    viper.GetBool("profilelatency"),
		},
		Sink:   outputSink,
		Source: source,
	})
	if err != nil {
		slog.Error("could not construct pipeline", "err", err)
		os.Exit(1)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		slog.Warn("received interrupt, shutting down")
		p.Shutdown()
	}()

	if err := p.Run(); err != nil {
		slog.Error("pipeline failed", "err", err)
		releaseSink()
		os.Exit(1)
	}
	slog.Info("exiting")
}
