package domain

// ChatMessage is the provider-agnostic chat message shape sent upstream.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const RoleUser = "user"

// UserMessage wraps content as a single user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// CompletionRequest is the chat-completions payload sent upstream.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// LineStream yields upstream response lines in arrival order until io.EOF.
type LineStream interface {
	Next() ([]byte, error)
	Close() error
	StatusCode() int
}
