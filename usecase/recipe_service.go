package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arimedika/server/domain/repositories"
	"github.com/arimedika/server/internal/extract"
)

const recipeSystemPrompt = `You are a home cooking assistant. Given leftover ` +
	`ingredients, suggest two or three simple healthy dishes. For each dish ` +
	`output labeled sections: Recipe Name, Ingredients, Instructions, Nutrition.`

// RecipeSuggestion is the outcome of one leftover-ingredients request.
type RecipeSuggestion struct {
	Text    string           `json:"text"`
	Recipes []extract.Recipe `json:"recipes"`
}

// RecipeService turns a list of leftover ingredients into recipe records
// through the chat model.
type RecipeService struct {
	llm    repositories.ChatCompleter
	logger *zap.Logger
}

func NewRecipeService(llm repositories.ChatCompleter, logger *zap.Logger) *RecipeService {
	return &RecipeService{llm: llm, logger: logger}
}

// Suggest asks the model for dishes that use the given ingredients and
// extracts the ordered recipe list from the reply.
func (s *RecipeService) Suggest(ctx context.Context, ingredients []string) (*RecipeSuggestion, error) {
	input := "I have these ingredients: " + strings.Join(ingredients, ", ")

	text, err := s.llm.Complete(ctx, repositories.ChatRequest{
		SystemPrompt: recipeSystemPrompt,
		Input:        input,
	})
	if err != nil {
		return nil, fmt.Errorf("recipe suggestion: %w", err)
	}

	recipes := extract.ParseRecipes(text, input)
	s.logger.Info("recipes suggested", zap.Int("count", len(recipes)))
	return &RecipeSuggestion{Text: text, Recipes: recipes}, nil
}
