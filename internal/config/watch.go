package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchHousehold reloads household.yaml on change and calls onUpdate with the
// latest version. It performs an initial load before entering the watch loop.
// A file that fails to parse is logged and the previous version stays active.
func WatchHousehold(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*Household)) error {
	if path == "" {
		path = "configs/household.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	h, err := LoadHousehold(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(h)
	}

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				h, err := LoadHousehold(path)
				if err != nil {
					if logger != nil {
						logger.Warn().Err(err).Str("path", path).Msg("household reload failed")
					}
					continue
				}
				lastMod = info.ModTime()
				if logger != nil {
					logger.Info().Str("path", path).Int("roster", len(h.Roster)).Msg("household reloaded")
				}
				if onUpdate != nil {
					onUpdate(h)
				}
			}
		}
	}()

	return nil
}
