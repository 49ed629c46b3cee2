package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/evilsocket/islazy/log"

	"github.com/evilsocket/meterlink/models"
)

type PendingStore interface {
	GetUnuploadedMeasurements() ([]models.Measurement, error)
	UpdateUploadStatus(id uint, status models.UploadStatus) error
}

type Uploader interface {
	Upload(ctx context.Context, m models.Measurement) ([]int64, error)
}

// Reporter delivers not uploaded measurements to the ERP, one at a time and
// oldest first. A measurement is submitted again only while its status is
// still NotUploaded.
type Reporter struct {
	sync.Mutex

	store    PendingStore
	uploader Uploader
	monitor  *Monitor
}

type SyncReport struct {
	Attempted int
	Uploaded  int
	Failed    int
	Duration  time.Duration
}

func NewReporter(store PendingStore, uploader Uploader, monitor *Monitor) *Reporter {
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &Reporter{
		store:    store,
		uploader: uploader,
		monitor:  monitor,
	}
}

// Sync runs a single pass, every pending measurement is attempted at most once.
func (r *Reporter) Sync(ctx context.Context) (report SyncReport, err error) {
	r.Lock()
	defer r.Unlock()

	started := time.Now()
	defer func() {
		report.Duration = time.Since(started)
	}()

	pending, err := r.store.GetUnuploadedMeasurements()
	if err != nil {
		return report, err
	}

	num := len(pending)
	if num == 0 {
		return report, nil
	}

	log.Debug("%d measurements to upload", num)

	for _, m := range pending {
		if ctx.Err() != nil {
			log.Debug("sync interrupted, %d measurements left for the next pass", num-report.Attempted)
			break
		}

		report.Attempted++
		if r.upload(ctx, m) {
			report.Uploaded++
		} else {
			report.Failed++
		}
	}

	log.Info("%d/%d measurements uploaded in %s", report.Uploaded, report.Attempted, time.Since(started))

	return report, nil
}

func (r *Reporter) upload(ctx context.Context, m models.Measurement) bool {
	ids, err := r.uploader.Upload(ctx, m)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			log.Error("measurement %d rejected by the erp: %s", m.ID, rejected.Message)
		} else {
			log.Warning("measurement %d not uploaded: %v", m.ID, err)
		}
		r.monitor.SetUploadFailed(true)
		return false
	}

	log.Debug("measurement %d created on the erp as %v", m.ID, ids)

	if err = r.store.UpdateUploadStatus(m.ID, models.Uploaded); err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			log.Warning("%v", err)
		} else {
			log.Error("error updating upload status of measurement %d: %v", m.ID, err)
		}
		r.monitor.SetUploadFailed(true)
		return false
	}

	r.monitor.SetUploadFailed(false)
	return true
}
