package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered, append-only message history supplied by the UI
// layer on every invocation.
type Transcript []Turn

// UserAnswers returns the user-side contents of the last n answered turns,
// oldest first. n <= 0 returns all user turns.
func (t Transcript) UserAnswers(n int) []string {
	var answers []string
	for _, turn := range t {
		if turn.Role == RoleUser {
			answers = append(answers, turn.Content)
		}
	}
	if n > 0 && len(answers) > n {
		answers = answers[len(answers)-n:]
	}
	return answers
}
