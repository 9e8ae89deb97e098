package alsactl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartupCommandSequence(t *testing.T) {
	guard := &Guard{iecCard: "0", iecIndex: "2"}
	commands := guard.startupCommands()
	require.Len(t, commands, 4)

	assert.Equal(t, "iecset", commands[0].program)
	assert.Equal(t, []string{"-c", "0", "-n", "2", "audio", "off", "rate", "48000"}, commands[0].args)

	assert.Equal(t, "amixer", commands[1].program)
	assert.Equal(t, []string{"-c", "0", "set", "Master", "unmute", "100%"}, commands[1].args)

	assert.Equal(t, "amixer", commands[2].program)
	assert.Equal(t, []string{"-c", "0", "set", "PCM", "unmute", "100%"}, commands[2].args)

	assert.Equal(t, "amixer", commands[3].program)
	assert.Equal(t, []string{"-c", "0", "set", "IEC958,2", "unmute"}, commands[3].args)
}

func TestShutdownRestoresAudioMode(t *testing.T) {
	guard := &Guard{iecCard: "1", iecIndex: "3"}
	commands := guard.shutdownCommands()
	require.Len(t, commands, 1)

	assert.Equal(t, "iecset", commands[0].program)
	assert.Equal(t, []string{"-c", "1", "-n", "3", "audio", "on"}, commands[0].args)
}

func TestCommandsCarryConfiguredCardAndIndex(t *testing.T) {
	guard := &Guard{iecCard: "7", iecIndex: "5"}
	for _, command := range guard.startupCommands() {
		switch command.program {
		case "iecset":
			assert.Contains(t, command.args, "7")
			assert.Contains(t, command.args, "5")
		case "amixer":
			assert.Equal(t, []string{"-c", "7"}, command.args[:2])
		}
	}
}
