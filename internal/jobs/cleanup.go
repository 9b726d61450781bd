package jobs

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper is anything holding TTL'd state that needs periodic pruning.
type Sweeper interface {
	SweepExpired() (codes, sessions int)
}

// CleanupJob prunes expired pairing codes and sessions. Expiry is already
// enforced at every read path; this just bounds the memory the stale
// entries occupy.
type CleanupJob struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan struct{}
}

func NewCleanupJob(sweeper Sweeper, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *CleanupJob) sweep() {
	codes, sessions := j.sweeper.SweepExpired()
	if codes > 0 || sessions > 0 {
		log.Info().
			Int("codes", codes).
			Int("sessions", sessions).
			Msg("cleaned up expired pairing state")
	}
}
