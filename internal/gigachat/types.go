package gigachat

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the request body for the chat completions endpoint.
// FunctionCall set to "auto" lets the model invoke its built-in image
// generator when the prompt asks for a picture.
type ChatRequest struct {
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
	Temperature  float64   `json:"temperature,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	FunctionCall string    `json:"function_call,omitempty"`
}

// ChatResponse is the response from the chat completions endpoint.
type ChatResponse struct {
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
			// FunctionsStateID and DataForContext appear on image
			// generation turns; only Content is mined for the file id.
			FunctionsStateID string `json:"functions_state_id,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Text returns the first choice's content, or "" when the response is empty.
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// ExpiresAt is unix milliseconds.
	ExpiresAt int64 `json:"expires_at"`
}
