// Package export renders extracted records into share text and the
// ordered section layout consumed by the external PDF renderer. Sections
// always follow the extraction order, so a record reads the same in chat,
// in share text, and in the exported document.
package export

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arimedika/server/internal/extract"
	"github.com/arimedika/server/usecase"
)

// Section is one labeled block of an exported document.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Document is the ordered layout handed to the PDF renderer: an
// identity/date header followed by the kind-specific sections.
type Document struct {
	Title    string    `json:"title"`
	Owner    string    `json:"owner"`
	Date     string    `json:"date"`
	Sections []Section `json:"sections"`
}

// BuildDocument lays out a record for rendering.
func BuildDocument(record *usecase.Record, ownerName string, at time.Time) *Document {
	return &Document{
		Title:    documentTitle(record.Kind),
		Owner:    ownerName,
		Date:     at.Format("January 2, 2006"),
		Sections: sections(record),
	}
}

// ShareText renders a record as plain text with emoji section markers.
func ShareText(record *usecase.Record, ownerName string, at time.Time) string {
	var b strings.Builder
	b.WriteString(documentTitle(record.Kind) + "\n")
	if ownerName != "" {
		b.WriteString(ownerName + " · ")
	}
	b.WriteString(at.Format("January 2, 2006") + "\n\n")

	for _, s := range sections(record) {
		b.WriteString(marker(s.Heading) + " " + s.Heading + "\n")
		b.WriteString(s.Body + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ShareLink wraps share text into a URL-encoded wa.me link.
func ShareLink(text string) string {
	return "https://wa.me/?text=" + url.QueryEscape(text)
}

func documentTitle(kind usecase.RecordKind) string {
	switch kind {
	case usecase.RecordPrescription:
		return "Consultation Summary"
	case usecase.RecordHealthPlan:
		return "Personal Health Plan"
	case usecase.RecordRecipes:
		return "Recipe Suggestions"
	case usecase.RecordNutrition:
		return "Meal Nutrition Report"
	default:
		return "Health Record"
	}
}

// sections flattens a record into labeled blocks in extraction order.
func sections(record *usecase.Record) []Section {
	switch record.Kind {
	case usecase.RecordPrescription:
		p := record.Prescription
		return []Section{
			{"Reported Symptoms", p.Symptoms},
			{"Diagnosis Summary", p.Diagnosis},
			{"Recommended Medications", p.Medications},
			{"General Advice", p.Advice},
			{"Follow-Up", p.FollowUp},
		}
	case usecase.RecordHealthPlan:
		h := record.HealthPlan
		out := []Section{
			{"Health Goals", h.Goals},
			{"Diet Plan", h.Diet},
			{"Exercise Plan", h.Exercise},
			{"Lifestyle Recommendations", h.Lifestyle},
			{"Follow-Up", h.FollowUp},
		}
		for _, day := range h.Days {
			out = append(out, Section{day.Label, day.Details})
		}
		return out
	case usecase.RecordRecipes:
		var out []Section
		for _, r := range record.Recipes {
			out = append(out,
				Section{"Recipe: " + r.Name, ""},
				Section{"Ingredients", r.Ingredients},
				Section{"Instructions", r.Instructions},
				Section{"Nutrition", r.Nutrition},
			)
		}
		return out
	case usecase.RecordNutrition:
		n := record.Nutrition
		out := []Section{{"Meal Breakdown", foodItemLines(n.Items)}}
		out = append(out,
			Section{"Meal Summary", n.Summary},
			Section{"Health Notes", n.Advice},
		)
		return out
	default:
		return nil
	}
}

func foodItemLines(items []extract.FoodItem) string {
	var lines []string
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s: %s kcal | %sg Protein | %sg Carbs | %sg Fat",
			item.Name,
			strconv.Itoa(item.Calories),
			strconv.Itoa(item.Protein),
			strconv.Itoa(item.Carbs),
			strconv.Itoa(item.Fat)))
	}
	return strings.Join(lines, "\n")
}

// marker picks the emoji for a section heading.
func marker(heading string) string {
	switch {
	case strings.HasPrefix(heading, "Reported Symptoms"):
		return "🩺"
	case strings.HasPrefix(heading, "Diagnosis"):
		return "📋"
	case strings.HasPrefix(heading, "Recommended Medications"):
		return "💊"
	case strings.HasPrefix(heading, "General Advice"), strings.HasPrefix(heading, "Health Notes"):
		return "💡"
	case strings.HasPrefix(heading, "Follow-Up"):
		return "📅"
	case strings.HasPrefix(heading, "Health Goals"):
		return "🎯"
	case strings.HasPrefix(heading, "Diet Plan"), strings.HasPrefix(heading, "Meal Breakdown"):
		return "🥗"
	case strings.HasPrefix(heading, "Exercise Plan"):
		return "🏃"
	case strings.HasPrefix(heading, "Lifestyle"):
		return "🌙"
	case strings.HasPrefix(heading, "Day "):
		return "📆"
	case strings.HasPrefix(heading, "Recipe:"):
		return "🍽️"
	case strings.HasPrefix(heading, "Ingredients"):
		return "🧺"
	case strings.HasPrefix(heading, "Instructions"):
		return "📖"
	case strings.HasPrefix(heading, "Nutrition"):
		return "🔥"
	case strings.HasPrefix(heading, "Meal Summary"):
		return "📊"
	default:
		return "•"
	}
}
