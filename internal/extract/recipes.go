package extract

import "strings"

// Recipe is one suggested dish.
type Recipe struct {
	Name         string `json:"name"`
	Ingredients  string `json:"ingredients"`
	Instructions string `json:"instructions"`
	Nutrition    string `json:"nutrition"`
}

var recipeFields = []Field{
	{Label: "Ingredients", Key: "ingredients", Default: "Uses the ingredients you listed"},
	{Label: "Instructions", Key: "instructions", Default: "Combine the ingredients to taste"},
	{Label: "Nutrition", Key: "nutrition", Default: "Nutrition varies with portion size"},
}

// LooksLikeRecipes reports whether a reply appears to carry recipe
// suggestions.
func LooksLikeRecipes(text string) bool {
	return containsAny(text, "Recipe Name:", "Ingredients:", "recipe")
}

// ParseRecipes splits a reply into an ordered recipe list. Each
// "Recipe Name:" heading opens a new sub-record; the block up to the next
// heading is sliced by the recipe label table. A reply with no headings at
// all yields one synthesized recipe from the user's ingredient list.
func ParseRecipes(reply, userInput string) []Recipe {
	blocks := splitByLabel(reply, "Recipe Name:")
	if len(blocks) == 0 {
		fields, matched := fill(reply, recipeFields)
		name := "Suggested dish"
		if matched == 0 && userInput != "" {
			name = "Quick dish from: " + userInput
		}
		return []Recipe{{
			Name:         name,
			Ingredients:  fields["ingredients"],
			Instructions: fields["instructions"],
			Nutrition:    fields["nutrition"],
		}}
	}

	recipes := make([]Recipe, 0, len(blocks))
	for _, block := range blocks {
		name, rest := firstLine(block)
		fields, _ := fill(rest, recipeFields)
		if name == "" {
			name = "Suggested dish"
		}
		recipes = append(recipes, Recipe{
			Name:         name,
			Ingredients:  fields["ingredients"],
			Instructions: fields["instructions"],
			Nutrition:    fields["nutrition"],
		})
	}
	return recipes
}

// splitByLabel returns the text blocks following each occurrence of label,
// in order of appearance.
func splitByLabel(text, label string) []string {
	lower := strings.ToLower(text)
	needle := strings.ToLower(label)

	var starts []int
	for from := 0; ; {
		idx := strings.Index(lower[from:], needle)
		if idx < 0 {
			break
		}
		starts = append(starts, from+idx+len(needle))
		from = from + idx + len(needle)
	}

	blocks := make([]string, 0, len(starts))
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1] - len(needle)
		}
		blocks = append(blocks, text[start:end])
	}
	return blocks
}

func firstLine(block string) (first, rest string) {
	block = strings.TrimLeft(block, " \t")
	if idx := strings.IndexByte(block, '\n'); idx >= 0 {
		return cleanSection(block[:idx]), block[idx+1:]
	}
	return cleanSection(block), ""
}
