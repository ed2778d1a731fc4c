package domain

// ServiceName and ServiceVersion identify the proxy on /health and /capabilities.
const (
	ServiceName    = "deep-research"
	ServiceVersion = "1.0.0"
	ToolName       = "deep_research"
)

// Health is the static liveness payload.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Name    string `json:"name"`
}

// Capabilities describes the tools this service exposes.
type Capabilities struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Tools       []Tool `json:"tools"`
}

// Tool is a single callable operation with its JSON input schema.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

func NewHealth() Health {
	return Health{Status: "ok", Version: ServiceVersion, Name: ServiceName}
}

// NewCapabilities returns the fixed descriptor for the deep_research tool.
func NewCapabilities() Capabilities {
	return Capabilities{
		Name:        ServiceName,
		Version:     ServiceVersion,
		Description: "Relays deep research queries to an online LLM and streams the answer back.",
		Tools: []Tool{
			{
				Name:        ToolName,
				Description: "Run a deep research query against an online model and stream the response as server-sent events.",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"query": {
							Type:        "string",
							Description: "The research question to answer.",
						},
					},
					Required: []string{"query"},
				},
			},
		},
	}
}
