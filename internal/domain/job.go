package domain

// JobStatus is the state of an external asynchronous job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Synthesis is the result of a text-to-speech call.
type Synthesis struct {
	Audio       []byte
	ContentType string
	Voice       string
	Engine      string
}
