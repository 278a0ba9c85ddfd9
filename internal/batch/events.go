package batch

import "time"

// Status captures the progress state of one file.
type Status string

const (
	// StatusQueued indicates the file is waiting to be processed.
	StatusQueued Status = "queued"
	// StatusWorking indicates the file is being processed.
	StatusWorking Status = "working"
	// StatusDone indicates the file was processed without error.
	StatusDone Status = "done"
	// StatusError indicates the file could not be processed.
	StatusError Status = "error"
)

// Event reports progress for a file.
type Event struct {
	File    string
	Status  Status
	Changed bool
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Sinks must be safe for concurrent
// use when the orchestrator runs with more than one job.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(evt Event) { f(evt) }
