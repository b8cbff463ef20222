// Package speech shells out to an external text-to-speech process and
// produces browser-friendly WAV files. It sits outside the agent core:
// synthesis failures are reported to the caller for logging but must
// never abort a turn.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thursdaylabs/thursday/internal/config"
)

// Synthesizer converts text to a WAV file via an external TTS process.
type Synthesizer struct {
	engine string
	voice  string
	outDir string
	logger *slog.Logger
}

// New creates a synthesizer from config. Engine must be "say" (macOS)
// or "piper".
func New(cfg config.SpeechConfig, logger *slog.Logger) *Synthesizer {
	engine := cfg.Engine
	if engine == "" {
		engine = "say"
	}
	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = filepath.Join("out", "tts")
	}
	return &Synthesizer{
		engine: engine,
		voice:  cfg.Voice,
		outDir: outDir,
		logger: logger,
	}
}

// SpeakToWAV synthesizes text into a WAV file and returns its path.
// Empty or whitespace-only text produces no file and no error.
//
// WAV (linear PCM) is the target because browser <audio> elements won't
// reliably decode the AIFF variants native TTS tools emit.
func (s *Synthesizer) SpeakToWAV(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	outWAV := filepath.Join(s.outDir, "last.wav")

	switch s.engine {
	case "say":
		return outWAV, s.speakWithSay(ctx, text, outWAV)
	case "piper":
		return outWAV, s.speakWithPiper(ctx, text, outWAV)
	default:
		return "", fmt.Errorf("unknown speech engine %q (valid: say, piper)", s.engine)
	}
}

// speakWithSay uses macOS `say` plus `afconvert`. say can only emit
// AIFF variants, so a conversion step to 16-bit linear PCM follows.
func (s *Synthesizer) speakWithSay(ctx context.Context, text, outWAV string) error {
	tmpAIFF := filepath.Join(s.outDir, "last_tmp.aiff")

	args := []string{text, "-o", tmpAIFF}
	if s.voice != "" {
		args = append([]string{"-v", s.voice}, args...)
	}
	if out, err := exec.CommandContext(ctx, "say", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("say: %w: %s", err, strings.TrimSpace(string(out)))
	}

	convert := exec.CommandContext(ctx, "afconvert", tmpAIFF, outWAV, "-f", "WAVE", "-d", "LEI16")
	if out, err := convert.CombinedOutput(); err != nil {
		return fmt.Errorf("afconvert: %w: %s", err, strings.TrimSpace(string(out)))
	}

	s.logger.Debug("synthesized speech", "engine", "say", "path", outWAV)
	return nil
}

// speakWithPiper pipes text into piper, which writes WAV directly.
func (s *Synthesizer) speakWithPiper(ctx context.Context, text, outWAV string) error {
	args := []string{"--output_file", outWAV}
	if s.voice != "" {
		args = append(args, "--model", s.voice)
	}

	cmd := exec.CommandContext(ctx, "piper", args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(string(out)))
	}

	s.logger.Debug("synthesized speech", "engine", "piper", "path", outWAV)
	return nil
}
