// Package alert implements the side channel fired on failed remote calls.
package alert

import (
	"context"
	"os/exec"

	"trendEnvelopeBot/internal/ports"
)

// SoundAlerter plays an audio file through an external player. The player
// runs detached so Alert never waits for playback.
type SoundAlerter struct {
	player string
	args   []string
	logger ports.Logger
	start  func(cmd *exec.Cmd) error
}

// NewSoundAlerter creates an alerter playing file with player (e.g. mpv).
func NewSoundAlerter(player, file string, logger ports.Logger) *SoundAlerter {
	if player == "" {
		player = "mpv"
	}
	return &SoundAlerter{
		player: player,
		args:   []string{"--no-video", file},
		logger: logger,
		start:  startDetached,
	}
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Alert starts the player and logs the reason.
func (s *SoundAlerter) Alert(ctx context.Context, reason string) {
	s.logger.Warn(ctx, "Alert: "+reason)
	cmd := exec.Command(s.player, s.args...)
	if err := s.start(cmd); err != nil {
		s.logger.Error(ctx, err, "Alert: failed to start sound player", map[string]interface{}{"player": s.player})
	}
}

// LogAlerter only logs alerts.
type LogAlerter struct {
	logger ports.Logger
}

// NewLogAlerter creates an alerter for hosts without audio.
func NewLogAlerter(logger ports.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Alert logs the reason at warning level.
func (l *LogAlerter) Alert(ctx context.Context, reason string) {
	l.logger.Warn(ctx, "Alert: "+reason)
}
