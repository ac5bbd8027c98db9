package llm

import (
	"context"

	"github.com/arimedika/server/domain/repositories"
)

// Mock returns canned labeled replies for local development without an API
// key. The replies carry the section labels the extractor recognizes.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Complete(_ context.Context, req repositories.ChatRequest) (string, error) {
	return "Reported Symptoms: " + req.Input + "\n" +
		"Diagnosis Summary: This is a development placeholder response.\n" +
		"Recommended Medications: None.\n" +
		"General Advice: Configure a Gemini API key to get real responses.\n" +
		"Follow-Up: Not applicable.", nil
}

func (m *Mock) AnalyzeImage(_ context.Context, _ repositories.VisionRequest) (string, error) {
	return "Rice: 210 kcal | 4g Protein | 45g Carbs | 1g Fat\n" +
		"Meal Summary: Development placeholder meal.\n" +
		"Health Notes: Configure a Gemini API key to get real analysis.", nil
}
