package db

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StartSessionCleaner removes expired sessions every interval until ctx is done.
func StartSessionCleaner(ctx context.Context, sessions *SessionRepository, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := sessions.DeleteExpired(ctx, time.Now())
				if err != nil {
					if ctx.Err() == nil {
						log.Error().Err(err).Msg("failed to clean expired sessions")
					}
					continue
				}
				if removed > 0 {
					log.Info().Int64("removed", removed).Msg("cleaned expired sessions")
				}
			}
		}
	}()
}
