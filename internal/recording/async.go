package recording

import (
	"context"
	"errors"

	"interviewprep/internal/apperr"
	"interviewprep/internal/auth"
	"interviewprep/internal/models"
	"interviewprep/internal/worker"

	"go.uber.org/zap"
)

// Dispatcher is the slice of worker.Dispatcher the async path needs.
type Dispatcher interface {
	Submit(job worker.Job) error
}

// Async spools a recording and uploads it on the worker pool so the
// request that ended the session does not wait on the object store.
type Async struct {
	uploader   *Uploader
	spool      *Spool
	dispatcher Dispatcher
	log        *zap.SugaredLogger
}

func NewAsync(uploader *Uploader, spool *Spool, dispatcher Dispatcher, log *zap.SugaredLogger) *Async {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Async{uploader: uploader, spool: spool, dispatcher: dispatcher, log: log}
}

// Submit queues the upload. It reports whether the job was accepted; a
// rejected upload is logged and never fails the caller.
func (a *Async) Submit(ctx context.Context, analysisID string, blob *models.RecordingBlob) bool {
	if blob.Empty() {
		return false
	}
	id, ok := auth.UserFromContext(ctx)
	if !ok {
		a.log.Warnf("recording for analysis %s dropped: %v", analysisID, apperr.ErrAuthRequired)
		return false
	}
	entry, err := a.spool.Write(id.UserID, analysisID, blob)
	if err != nil {
		a.log.Errorf("%v", &apperr.StorageError{Op: "spool", Err: err})
		return false
	}

	userID := id.UserID
	job := worker.Job{
		UserID: userID,
		Name:   "recording:" + analysisID,
		Exec: func(jobCtx context.Context) {
			a.run(auth.WithUser(jobCtx, userID), entry, analysisID)
		},
	}
	if err := a.dispatcher.Submit(job); err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			a.log.Warnf("recording upload for analysis %s skipped: %v", analysisID, err)
		} else {
			a.log.Errorf("recording upload for analysis %s not queued: %v", analysisID, err)
		}
		a.spool.Remove(entry)
		return false
	}
	return true
}

func (a *Async) run(ctx context.Context, entry, analysisID string) {
	blob, err := a.spool.Read(entry)
	if err != nil {
		a.log.Errorf("%v", &apperr.StorageError{Op: "read spool", Err: err})
		return
	}
	if up := a.uploader.UploadAndLink(ctx, blob, analysisID); up == nil {
		// keep the spooled copy until the cleaner expires it
		return
	}
	a.spool.Remove(entry)
}
