package domain

// IngestState is the lifecycle of one ingested file.
//
//	uploaded -> chunking -> chunked -> embedding_queued -> embedded -> ready
//
// Any non-terminal state may move to failed. Failed and ready are terminal;
// re-submitting the file starts again from uploaded. Status derived from
// task records moves from embedding_queued straight to ready once the embed
// task has finished, with IngestStatus.Partial set when some chunks failed.
type IngestState string

// Ingestion states.
const (
	IngestUploaded        IngestState = "uploaded"
	IngestChunking        IngestState = "chunking"
	IngestChunked         IngestState = "chunked"
	IngestEmbeddingQueued IngestState = "embedding_queued"
	IngestEmbedded        IngestState = "embedded"
	IngestReady           IngestState = "ready"
	IngestFailed          IngestState = "failed"
)

var ingestTransitions = map[IngestState][]IngestState{
	IngestUploaded:        {IngestChunking},
	IngestChunking:        {IngestChunked},
	IngestChunked:         {IngestEmbeddingQueued},
	IngestEmbeddingQueued: {IngestEmbedded},
	IngestEmbedded:        {IngestReady},
}

// IsTerminal reports whether no further transition is possible.
func (s IngestState) IsTerminal() bool {
	return s == IngestReady || s == IngestFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s IngestState) CanTransition(next IngestState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == IngestFailed {
		return true
	}
	for _, allowed := range ingestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IngestStatus is the observed state of a file submitted for ingestion.
type IngestStatus struct {
	// TaskID is the chunk task the status was derived from.
	TaskID string `json:"task_id"`

	// EmbedTaskID is set once the chunk stage handed off.
	EmbedTaskID string `json:"embed_task_id,omitempty"`

	// State is the current lifecycle state.
	State IngestState `json:"state"`

	// Partial is true when some chunks failed to embed.
	Partial bool `json:"partial,omitempty"`

	// FailedStage and Reason describe a failure.
	FailedStage Stage  `json:"failed_stage,omitempty"`
	Reason      string `json:"reason,omitempty"`

	// Chunks is the number of chunks persisted by the chunk stage.
	Chunks int `json:"chunks"`

	// Embedded and Failed count embed stage items.
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}
