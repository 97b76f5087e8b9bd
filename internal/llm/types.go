package llm

// Role is the sender of a chat message. Extraction sends one system
// instruction followed by the document as a user message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single chat message.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is one chat-completion call. JSONMode asks the
// provider to constrain its reply to a JSON object.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// CompletionResponse carries the reply text and the token usage the
// provider reported, which feeds Usage.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}
