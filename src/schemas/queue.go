package schemas

// QueueStatus is a point-in-time snapshot of the task queue with no side
// effects.
type QueueStatus struct {
	QueueSize             int      `json:"queueSize"`
	ActiveTasks           int      `json:"activeTasks"`
	ProcessingResourceIDs []string `json:"processingResourceIds"`
	PendingTaskIDs        []string `json:"pendingTaskIds"`
	ActiveTaskIDs         []string `json:"activeTaskIds"`
	MaxConcurrentTasks    int      `json:"maxConcurrentTasks"`
}
