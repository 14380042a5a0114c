package playlist

import (
	"context"
	"sync"

	"smfplayer/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Dispatcher runs network-bound engine operations (enrichment,
// recommendation lookup) on worker goroutines so the control path is never
// frozen for the duration of a remote call. Results are applied only if the
// (index, path) pair captured at dispatch time still identifies the same
// resident song; otherwise the late result is discarded.
type Dispatcher struct {
	manager *Manager
	logger  *logrus.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given engine.
func NewDispatcher(manager *Manager, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Dispatcher{manager: manager, logger: logger}
}

// EnrichAsync fetches enrichment for the song at index in the background and
// hands the enriched copy to apply. Stale results are dropped.
func (d *Dispatcher) EnrichAsync(ctx context.Context, index int, apply func(models.Song)) {
	song, ok := d.manager.SongAt(index)
	if !ok {
		return
	}
	jobID := uuid.NewString()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		enriched := d.manager.Enrich(ctx, song)
		if !d.manager.IsResident(index, song.Path) {
			d.logger.WithFields(logrus.Fields{
				"job_id": jobID,
				"path":   song.Path,
				"index":  index,
			}).Info("Discarding stale enrichment result")
			return
		}
		apply(enriched)
	}()
}

// RecommendAsync fetches recommendations for the song at index in the
// background and hands them to apply. Stale results are dropped.
func (d *Dispatcher) RecommendAsync(ctx context.Context, index int, apply func([]models.Recommendation)) {
	song, ok := d.manager.SongAt(index)
	if !ok {
		return
	}
	jobID := uuid.NewString()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		recs := d.manager.RecommendationsFor(ctx, song.Artist, song.Title)
		if !d.manager.IsResident(index, song.Path) {
			d.logger.WithFields(logrus.Fields{
				"job_id": jobID,
				"path":   song.Path,
				"index":  index,
			}).Info("Discarding stale recommendation result")
			return
		}
		apply(recs)
	}()
}

// Wait blocks until all in-flight jobs have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
