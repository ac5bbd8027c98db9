package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// FoodItem is one food entry in a meal analysis. Numeric fields default to
// zero when the model omits them.
type FoodItem struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
}

// NutritionReport is the structured view over one meal-analysis reply.
type NutritionReport struct {
	Items   []FoodItem `json:"items"`
	Summary string     `json:"summary"`
	Advice  string     `json:"advice"`
}

var nutritionFields = []Field{
	{Label: "Meal Summary", Key: "summary", Default: "Analysis of the foods in your photo"},
	{Label: "Health Notes", Key: "advice", Default: "Personalized recommendations based on your health profile"},
}

// foodItemLine matches the loose "label-like prefix: number unit ..."
// shape, e.g. "Steamed rice: 210 kcal | 4g Protein | 45g Carbs | 1g Fat".
// Every macro past calories is optional so partial lines still parse.
var foodItemLine = regexp.MustCompile(`(?i)^\s*[-*]?\s*(.+?):\s*(\d+)\s*kcal` +
	`(?:\s*\|\s*(\d+)\s*g\s*Protein)?` +
	`(?:\s*\|\s*(\d+)\s*g\s*Carbs)?` +
	`(?:\s*\|\s*(\d+)\s*g\s*Fat)?`)

// LooksLikeNutrition reports whether a reply appears to carry a meal
// analysis.
func LooksLikeNutrition(text string) bool {
	return containsAny(text, "kcal", "Meal Summary:", "Calories:")
}

// ParseNutrition extracts the per-food nutrition lines plus the summary
// sections. When no food line matches anywhere, it synthesizes a single
// minimal item from the user's own description so the caller always has
// something to display.
func ParseNutrition(reply, userInput string) *NutritionReport {
	fields, _ := fill(reply, nutritionFields)
	report := &NutritionReport{
		Summary: fields["summary"],
		Advice:  fields["advice"],
	}

	for _, line := range strings.Split(reply, "\n") {
		m := foodItemLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := cleanSection(m[1])
		// Labeled sections such as "Total Calories: 640 kcal" are not food
		// items.
		if strings.EqualFold(name, "Total Calories") || strings.EqualFold(name, "Total") {
			continue
		}
		report.Items = append(report.Items, FoodItem{
			Name:     name,
			Calories: atoiSafe(m[2]),
			Protein:  atoiSafe(m[3]),
			Carbs:    atoiSafe(m[4]),
			Fat:      atoiSafe(m[5]),
		})
	}

	if len(report.Items) == 0 {
		name := "Your meal"
		if userInput != "" {
			name = userInput
		}
		report.Items = []FoodItem{{Name: name}}
	}
	return report
}

// atoiSafe parses a decimal integer, defaulting to zero on any failure.
func atoiSafe(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
