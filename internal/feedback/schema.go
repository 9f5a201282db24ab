package feedback

import "github.com/02061997/ai-tutor-experiment/internal/llm"

// Schema is the structured output requested from the provider.
var Schema = &llm.Schema{
	Name:        "study-feedback",
	Description: "Short study guidance for the topics an examinee found hardest",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{
				"type":        "string",
				"description": "Two or three encouraging sentences about overall performance",
			},
			"focus_areas": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic": map[string]any{
							"type":        "string",
							"description": "One of the weak topics, copied exactly",
						},
						"suggestion": map[string]any{
							"type":        "string",
							"description": "One concrete thing to practise for this topic",
						},
					},
					"required":             []any{"topic", "suggestion"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"summary", "focus_areas"},
		"additionalProperties": false,
	},
}
