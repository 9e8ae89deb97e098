package config

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/viper"
)

func setViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	// Playback target (node id or name); empty means auto-routing.
	viper.SetDefault("target", "")

	// Sample ring capacity in audio frames, approx 100ms at 48kHz.
	viper.SetDefault("bufferframes", 4800)

	// Encoded byte ring capacity; 0 means four times the sample ring.
	viper.SetDefault("byteringbytes", 0)

	// One of "playback", "stream", "alsa".
	viper.SetDefault("output", "playback")

	// Direct ALSA output mode.
	viper.SetDefault("alsadevice", "hw:0,2")
	viper.SetDefault("ieccard", "0")
	viper.SetDefault("iecindex", "2")

	// Encoder tuning.
	viper.SetDefault("encoderqueuesize", 128)
	viper.SetDefault("feederchunkframes", 128)
	viper.SetDefault("profilelatency", false)

	// Optional WAV file replayed as the capture source, for demos and
	// testing without a live session.
	viper.SetDefault("inputfile", "")
}

func LoadConfig(configFilePath string) {
	setViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		// With an explicit config file viper reports a missing file as a
		// path error, not its own not-found type, so check for both.
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if errors.As(err, &notFound) || (errors.As(err, &pathErr) && errors.Is(err, fs.ErrNotExist)) {
			slog.Info("no config file found, using defaults", "configFilePath", configFilePath)
		} else {
			slog.Error("error during config read", "err", err)
			panic(err)
		}
	}
}
