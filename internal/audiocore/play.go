package audiocore

import (
	"bytes"
	"context"
	"encoding/binary"
	"os/exec"
	"strconv"

	"github.com/tphakala/go-remix/internal/errors"
)

// DefaultPlayer is the sox playback binary.
const DefaultPlayer = "play"

// PlayerArgs returns the sox arguments for raw signed 16-bit PCM on stdin.
func PlayerArgs(f Format) []string {
	return []string{
		"-t", "s16",
		"-c", strconv.Itoa(f.Channels),
		"-r", strconv.Itoa(f.SampleRate),
		"-q",
		"-",
	}
}

// Play pipes the held frames to an external player and waits for it to exit.
// It is a debugging aid. Only 16-bit buffers can be played.
func (b *Buffer) Play(ctx context.Context, player string) error {
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	if b.format.BitDepth != 16 {
		return formatError("cannot play %d-bit samples, player expects 16-bit", b.format.BitDepth)
	}
	if err := b.format.Validate(); err != nil {
		return err
	}
	if player == "" {
		player = DefaultPlayer
	}

	pcm := make([]byte, 2*len(b.samples))
	for i, v := range b.samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(v))
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, player, PlayerArgs(b.format)...) //nolint:gosec // player comes from settings
	cmd.Stdin = bytes.NewReader(pcm)
	cmd.Stderr = &stderr

	logger().Debug("starting playback", "player", player, "frames", b.Frames())

	if err := cmd.Run(); err != nil {
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryProcess).
			Context("operation", "play").
			Context("stderr", stderr.String()).
			Build()
	}
	return nil
}
