package worker

import (
	"context"

	"go.uber.org/zap"
)

type JobType string

const (
	Run  JobType = "run"
	Stop JobType = "stop"
)

// Job is one unit of background work owned by a user.
type Job struct {
	Type   JobType
	UserID int64
	Name   string
	Exec   func(ctx context.Context)
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
	log        *zap.SugaredLogger
}

func NewWorker(pool *jobChannelPool, id int, log *zap.SugaredLogger) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
		log:        log,
	}
}

// Start parks the worker in the idle queue and runs jobs until told to stop.
func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				w.log.Debugf("[worker-%d] stopped", w.id)
				return
			}
			w.execute(job)
		}
	}()
}

func (w *Worker) execute(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorf("[worker-%d] job %s for user %d panicked: %v", w.id, job.Name, job.UserID, r)
		}
	}()
	if job.Exec == nil {
		return
	}
	job.Exec(context.Background())
}
