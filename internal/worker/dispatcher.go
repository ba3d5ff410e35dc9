package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDispatcherBusy is returned by Submit when the intake queue is full.
var ErrDispatcherBusy = errors.New("dispatcher busy")

// ErrDispatcherStopped is returned by Submit after Stop.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Config sizes the worker pool.
type Config struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher runs jobs on a bounded pool, round-robin across users so one
// user's backlog cannot starve another's.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	log      *zap.SugaredLogger

	mu        sync.Mutex
	queues    map[int64]*userQueue // job queue for each user
	ready     *list.List           // LRU queue storing user IDs
	positions map[int64]*list.Element
	quit      chan struct{}
	stopOnce  sync.Once
}

func NewDispatcher(cfg Config, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	pool := newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout, log)

	d := &Dispatcher{
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		pool:      pool,
		JobQueue:  make(chan Job, cfg.QueueSize),
		log:       log,
		quit:      make(chan struct{}),
	}

	// warm up workers
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit enqueues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.quit:
		return ErrDispatcherStopped
	default:
	}
	job.Type = Run
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Stop halts dispatching and retires idle workers. Queued jobs are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.shutdown()
	})
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of user in the front of LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue: // force congestion
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		// if we have a new job, enqueue it and its caller user
		select {
		case job := <-d.JobQueue: // non-congestion
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

// CancelUser drops every queued job of the user. Running jobs are not interrupted.
func (d *Dispatcher) CancelUser(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.UserID

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// user already enqueue, skip
		return
	}
	// new user, enqueue
	q.enqueued = true
	elem := d.ready.PushBack(userID)
	d.positions[userID] = elem
}

// dispatchOne get first user in LRU and dispatch its job
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(int64)
	q := d.queues[userID]
	// get job from the first user
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// user only have one job, it'll be handled, user needs to quit queue
		delete(d.queues, userID)
		d.ready.Remove(elem)
		delete(d.positions, userID)
	} else {
		// get to the back of queue
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	d.log.Debugf("[dispatcher] assign job %s for user %d to worker-%d", job.Name, userID, d.pool.workerID(workerChan))
	workerChan <- job
	return true
}
