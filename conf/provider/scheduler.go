package provider

// Scheduler 把任务推迟到下一个调度轮次执行。
// DataProvider 的拉取与通知都经由 Scheduler，从不在调用方的栈上同步执行。
type Scheduler interface {
	Schedule(task func())
}

// GoScheduler 为每个任务启动一个 goroutine。
type GoScheduler struct{}

func (GoScheduler) Schedule(task func()) { go task() }

// SchedulerFunc 适配普通函数。
type SchedulerFunc func(task func())

func (f SchedulerFunc) Schedule(task func()) { f(task) }
