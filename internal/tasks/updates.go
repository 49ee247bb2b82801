package tasks

import "fmt"

// ProgressNotifier receives progress from long-running resolutions. Calls must not block.
type ProgressNotifier interface {
	Notify(current, total int, key string)
	ReportFailure(message string)
}

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or server layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchMetadata Phase = iota
	ResolveTracks
	Contribute
	Failure
)

func (p Phase) String() string {
	switch p {
	case FetchMetadata:
		return "fetch_metadata"
	case ResolveTracks:
		return "resolve_tracks"
	case Contribute:
		return "contribute"
	case Failure:
		return "failure"
	default:
		return ""
	}
}

func fetchingMetadataUpdate(fetched int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchMetadata,
		Step:    fetched,
		Message: fmt.Sprintf("Fetched %d tracks from Spotify...", fetched),
	}
}

func resolvingUpdate(current, total int, key string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    current,
		Total:   total,
		Message: fmt.Sprintf("Loading track %d/%d...", current, total),
		Data:    key,
	}
}

func contributingUpdate(submitted, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Contribute,
		Step:    submitted,
		Total:   total,
		Message: fmt.Sprintf("Contributed %d/%d cached queries...", submitted, total),
	}
}

func failureUpdate(message string) ProgressUpdate {
	return ProgressUpdate{Phase: Failure, Message: message}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ChannelNotifier adapts a [ProgressUpdate] channel to [ProgressNotifier].
// Updates are dropped when the channel is full.
type ChannelNotifier chan<- ProgressUpdate

func (c ChannelNotifier) Notify(current, total int, key string) {
	sendProgress(c, resolvingUpdate(current, total, key))
}

func (c ChannelNotifier) ReportFailure(message string) {
	sendProgress(c, failureUpdate(message))
}

// fetched reports provider pagination progress.
func (c ChannelNotifier) fetched(n int) {
	sendProgress(c, fetchingMetadataUpdate(n))
}

type nopNotifier struct{}

func (nopNotifier) Notify(int, int, string) {}
func (nopNotifier) ReportFailure(string)    {}
