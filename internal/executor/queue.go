package executor

import (
	"sync"

	"github.com/ternarybob/arbor"
)

// queueResult carries one completed queue task back to its submitter
type queueResult struct {
	value any
	err   error
}

// queueTask is one pending invocation on an action's FIFO
type queueTask struct {
	run  func() (any, error)
	done chan queueResult
}

// actionQueue serializes every invocation of one action through a single
// worker goroutine. Channel ordering gives strict submission-order FIFO with
// concurrency 1. Queues are created lazily on first use and live for the
// process lifetime; the serialization is process-local only.
type actionQueue struct {
	key   string
	tasks chan queueTask
}

func newActionQueue(key string, logger arbor.ILogger) *actionQueue {
	q := &actionQueue{
		key:   key,
		tasks: make(chan queueTask, 64),
	}
	go q.loop()
	if logger != nil {
		logger.Debug().Str("queue", key).Msg("Action queue created")
	}
	return q
}

func (q *actionQueue) loop() {
	for task := range q.tasks {
		value, err := task.run()
		task.done <- queueResult{value: value, err: err}
	}
}

// submit appends the task and blocks until the worker has run it
func (q *actionQueue) submit(run func() (any, error)) (any, error) {
	task := queueTask{run: run, done: make(chan queueResult, 1)}
	q.tasks <- task
	result := <-task.done
	return result.value, result.err
}

// queueSet manages the lazily-created queues, one per action key
type queueSet struct {
	mu     sync.Mutex
	queues map[string]*actionQueue
	logger arbor.ILogger
}

func newQueueSet(logger arbor.ILogger) *queueSet {
	return &queueSet{
		queues: make(map[string]*actionQueue),
		logger: logger,
	}
}

func (s *queueSet) run(key string, fn func() (any, error)) (any, error) {
	s.mu.Lock()
	queue, ok := s.queues[key]
	if !ok {
		queue = newActionQueue(key, s.logger)
		s.queues[key] = queue
	}
	s.mu.Unlock()

	return queue.submit(fn)
}
