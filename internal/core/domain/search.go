package domain

// ChatRole identifies the author of a chat message.
type ChatRole string

// Chat roles understood by every generation provider.
const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// EmbedPurpose tells an embedding provider what the text will be used for.
// Some models embed queries and documents differently.
type EmbedPurpose string

// Embedding purposes.
const (
	PurposeDocument EmbedPurpose = "document"
	PurposeQuery    EmbedPurpose = "query"
)

// RetrievedChunk is a search result with its payload unpacked.
type RetrievedChunk struct {
	// ID is the vector record ID.
	ID string `json:"id"`

	// Score is the similarity score, higher is more relevant.
	Score float64 `json:"score"`

	// Text is the verbatim chunk text.
	Text string `json:"text"`

	// SourcePath is the file the chunk came from.
	SourcePath string `json:"source_path,omitempty"`

	// Metadata is the remaining payload.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Answer is a generated response plus the chunks it was grounded on.
type Answer struct {
	// Text is the generated answer.
	Text string `json:"answer"`

	// Sources are the retrieved chunks, in score order.
	Sources []RetrievedChunk `json:"sources"`

	// Prompt is the full prompt sent to the generation provider.
	Prompt string `json:"prompt,omitempty"`
}

// DefaultTopK bounds retrieval when callers pass a non-positive top_k.
const DefaultTopK = 5
