package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bgbye/bgbye/internal/domain/models"
)

// DurationProber reads the playback length of a video asset in seconds.
type DurationProber interface {
	Duration(ctx context.Context, asset *models.Asset) (float64, error)
}

// FFProbe reads durations by running ffprobe against a temporary copy of the asset.
type FFProbe struct {
	// Binary is the ffprobe executable, "ffprobe" when empty
	Binary string

	// TempDir holds the temporary copies, os.TempDir() when empty
	TempDir string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration implements DurationProber.
func (p FFProbe) Duration(ctx context.Context, asset *models.Asset) (float64, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if len(asset.Data) == 0 {
		return 0, errors.New("ffprobe: empty asset")
	}

	f, err := os.CreateTemp(p.TempDir, "bgbye-probe-*"+filepath.Ext(asset.Filename))
	if err != nil {
		return 0, fmt.Errorf("ffprobe: create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(asset.Data); err != nil {
		f.Close()
		return 0, fmt.Errorf("ffprobe: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("ffprobe: close temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(output)
}

func parseDuration(output []byte) (float64, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", out.Format.Duration, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ffprobe duration %v is not positive", d)
	}
	return d, nil
}
