package extract

import (
	"regexp"
	"strings"
)

// HealthPlan is the structured view over one health-coach reply.
type HealthPlan struct {
	Goals     string    `json:"goals"`
	Diet      string    `json:"diet"`
	Exercise  string    `json:"exercise"`
	Lifestyle string    `json:"lifestyle"`
	FollowUp  string    `json:"follow_up"`
	Days      []DayPlan `json:"days,omitempty"`
}

// DayPlan is one day of a multi-day plan, in the order it appeared.
type DayPlan struct {
	Label   string `json:"label"`
	Details string `json:"details"`
}

var healthPlanFields = []Field{
	{Label: "Health Goals", Key: "goals", Default: "Personalized goals based on your health profile"},
	{Label: "Diet Plan", Key: "diet", Default: "Balanced meals tailored to your preferences"},
	{Label: "Exercise Plan", Key: "exercise", Default: "Regular moderate activity suited to your fitness level"},
	{Label: "Lifestyle Recommendations", Key: "lifestyle", Default: "Personalized recommendations based on your health profile"},
	{Label: "Follow-Up", Key: "follow_up", Default: "Check in on your progress next week"},
}

var dayHeading = regexp.MustCompile(`(?mi)^\s*(?:\*\*)?\s*(Day\s+\d+)\s*(?:\*\*)?\s*:`)

// LooksLikeHealthPlan reports whether a reply appears to carry a wellness
// plan.
func LooksLikeHealthPlan(text string) bool {
	return containsAny(text,
		"Health Goals:",
		"Diet Plan:",
		"Exercise Plan:",
		"health plan",
	)
}

// ParseHealthPlan slices a reply into the plan fields plus any day-wise
// sub-plans. Each "Day N:" heading becomes its own ordered sub-record.
func ParseHealthPlan(reply, userInput string) *HealthPlan {
	fields, matched := fill(reply, healthPlanFields)
	plan := &HealthPlan{
		Goals:     fields["goals"],
		Diet:      fields["diet"],
		Exercise:  fields["exercise"],
		Lifestyle: fields["lifestyle"],
		FollowUp:  fields["follow_up"],
		Days:      parseDayPlans(reply),
	}
	if matched == 0 && len(plan.Days) == 0 && userInput != "" {
		plan.Goals = userInput
	}
	return plan
}

func parseDayPlans(text string) []DayPlan {
	locs := dayHeading.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	days := make([]DayPlan, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		days = append(days, DayPlan{
			Label:   text[loc[2]:loc[3]],
			Details: cleanSection(trimAtLabel(text[loc[1]:end], healthPlanFields)),
		})
	}
	return days
}

// trimAtLabel cuts a day block short at the first recognized plan label, so
// the final day does not swallow the sections that follow it.
func trimAtLabel(block string, fields []Field) string {
	lower := strings.ToLower(block)
	cut := len(block)
	for _, f := range fields {
		if idx := strings.Index(lower, strings.ToLower(f.Label)+":"); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return block[:cut]
}
