package openai

// Model ids served by the chat completions endpoint.
const (
	ModelFay          = "fay"
	ModelFayStreaming = "fay-streaming"
)

// ModelsResponse represents the response from the /v1/models endpoint.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Model represents a single model in the OpenAI API format.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// NewModelsResponse lists the fixed fay models.
func NewModelsResponse(created int64) ModelsResponse {
	return ModelsResponse{
		Object: "list",
		Data: []Model{
			{ID: ModelFay, Object: "model", Created: created, OwnedBy: "fay"},
			{ID: ModelFayStreaming, Object: "model", Created: created, OwnedBy: "fay"},
		},
	}
}
