package llm

// Message represents a single chat message. Content is kept as blocks so
// that multimodal OpenAI messages survive parsing.
type Message struct {
	Role    string         `json:"role"`    // "system", "user", "assistant", "tool"
	Content []ContentBlock `json:"content"` // Array of content blocks
}

// ContentBlock represents a single piece of content within a message.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image", "tool_use", "tool_result"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Image content (type="image")
	ImageURL string `json:"image_url,omitempty"`

	// Tool use (type="tool_use")
	ToolUseID string `json:"tool_use_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput string `json:"tool_input,omitempty"`

	// Tool result (type="tool_result")
	ToolResultID string `json:"tool_result_id,omitempty"`
}

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

// GetText returns the concatenated text of all text and tool result blocks.
func (m *Message) GetText() string {
	var result string
	for _, block := range m.Content {
		switch block.Type {
		case "text", "tool_result":
			result += block.Text
		}
	}
	return result
}
