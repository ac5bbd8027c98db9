package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arimedika/server/domain/repositories"
	"github.com/arimedika/server/internal/extract"
)

const nutritionVisionPrompt = `You are a nutrition analyst. Identify every ` +
	`food item in the photo and estimate its nutrition. For each item output ` +
	`one line: name: N kcal | Ng Protein | Ng Carbs | Ng Fat. Then add a ` +
	`Meal Summary section and a Health Notes section.`

// MealAnalysis is the outcome of one meal photo analysis.
type MealAnalysis struct {
	Text   string                  `json:"text"`
	Report extract.NutritionReport `json:"report"`
}

// MealService analyzes meal photos into nutrition breakdowns through the
// vision model. One request, one response.
type MealService struct {
	vision repositories.VisionAnalyzer
	logger *zap.Logger
}

func NewMealService(vision repositories.VisionAnalyzer, logger *zap.Logger) *MealService {
	return &MealService{vision: vision, logger: logger}
}

// AnalyzeMeal sends the photo plus an optional user note to the vision
// model and extracts the nutrition record from the reply.
func (s *MealService) AnalyzeMeal(ctx context.Context, image []byte, mime, note string) (*MealAnalysis, error) {
	input := "Analyze this meal."
	if strings.TrimSpace(note) != "" {
		input = note
	}

	text, err := s.vision.AnalyzeImage(ctx, repositories.VisionRequest{
		SystemPrompt: nutritionVisionPrompt,
		Input:        input,
		ImageData:    image,
		ImageMIME:    mime,
	})
	if err != nil {
		return nil, fmt.Errorf("meal analysis: %w", err)
	}

	report := extract.ParseNutrition(text, input)
	s.logger.Info("meal analyzed", zap.Int("items", len(report.Items)))
	return &MealAnalysis{Text: text, Report: *report}, nil
}
