package driven

// PromptStore provides access to generation prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Unknown names return an error; known names fall back to a built-in default.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names.
const (
	// PromptAnswer frames retrieved context and the user's question.
	// The template expects {context} and {query} placeholders.
	PromptAnswer = "answer"

	// PromptSystem is an optional system turn prepended to answer history.
	PromptSystem = "system"
)

// Prompt template placeholders.
const (
	PlaceholderContext = "{context}"
	PlaceholderQuery   = "{query}"
)

// DefaultAnswerPrompt is the built-in answer template.
const DefaultAnswerPrompt = "Use the following context to answer the question:\n" +
	"Context: {context}\n" +
	"Question: {query}\n" +
	"Answer:"
