package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the aggregator to hand off work it must not wait for.
// Example usage:
//
//	scheduler := NewScheduler(workerCount, queueSize)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewPersistArticlesTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
