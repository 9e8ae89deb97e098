// Package alsactl holds the best-effort hardware mixer setup used by
// direct ALSA output mode.
package alsactl

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Scoped, non-fatal hardware mixer state for direct output mode: flip
// the IEC958 output into non-audio (passthrough) mode and unmute the
// relevant volumes on acquisition, restore plain audio mode on release.
//
// Intentionally best-effort: on machines without matching controls every
// command failure is logged and ignored, and the pipeline proceeds
// regardless. Correctness on unsupported hardware is a non-goal, this
// guard only ever helps.
type Guard struct {
	logger *slog.Logger

	iecCard  string
	iecIndex string
}

type commandSpec struct {
	program string
	args    []string
	context string
}

// Apply the startup command sequence and return the guard. The caller
// must arrange for Release to run on every exit path, normal or not.
//
// Typical Steam Deck values are iecCard="0", iecIndex="2".
func Setup(iecCard, iecIndex string) *Guard {
	guard := &Guard{
		logger:   slog.Default().With("component", "alsa guard"),
		iecCard:  iecCard,
		iecIndex: iecIndex,
	}
	guard.applyCommands(guard.startupCommands())
	return guard
}

// Restore the hardware to standard audio mode. Safe to call more than
// once; each command is independently best-effort.
func (g *Guard) Release() {
	g.applyCommands(g.shutdownCommands())
}

func (g *Guard) applyCommands(commands []commandSpec) {
	for _, command := range commands {
		g.runBestEffort(command)
	}
}

func (g *Guard) startupCommands() []commandSpec {
	return []commandSpec{
		{
			program: "iecset",
			args:    g.iecsetArgs("audio", "off", "rate", "48000"),
			context: "set IEC958 to non-audio mode",
		},
		{
			program: "amixer",
			args:    []string{"-c", g.iecCard, "set", "Master", "unmute", "100%"},
			context: "set Master to 100% and unmute",
		},
		{
			program: "amixer",
			args:    []string{"-c", g.iecCard, "set", "PCM", "unmute", "100%"},
			context: "set PCM to 100% and unmute",
		},
		{
			program: "amixer",
			args:    []string{"-c", g.iecCard, "set", fmt.Sprintf("IEC958,%s", g.iecIndex), "unmute"},
			context: "unmute IEC958 control",
		},
	}
}

func (g *Guard) shutdownCommands() []commandSpec {
	return []commandSpec{
		{
			program: "iecset",
			args:    g.iecsetArgs("audio", "on"),
			context: "restore IEC958 to PCM audio mode",
		},
	}
}

func (g *Guard) iecsetArgs(tail ...string) []string {
	args := []string{"-c", g.iecCard, "-n", g.iecIndex}
	return append(args, tail...)
}

// Failure here must never stop the run, so the worst outcome of any
// command is a warning.
func (g *Guard) runBestEffort(command commandSpec) {
	output, err := exec.Command(command.program, command.args...).CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			g.logger.Warn(command.context+": command failed",
				"program", command.program,
				"err", err,
			)
		} else {
			g.logger.Warn(command.context+": command failed",
				"program", command.program,
				"err", err,
				"output", detail,
			)
		}
		return
	}
	g.logger.Info(command.context + ": ok")
}
