package domain

// ChatRole is the author of a chat message.
type ChatRole string

// Chat roles understood by the completion provider.
const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a completion request.
type ChatMessage struct {
	Role    ChatRole
	Content string
}
