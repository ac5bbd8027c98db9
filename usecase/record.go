package usecase

import "github.com/arimedika/server/internal/extract"

// RecordKind names the structured record types extracted from model
// replies.
type RecordKind string

const (
	RecordPrescription RecordKind = "prescription"
	RecordHealthPlan   RecordKind = "health_plan"
	RecordRecipes      RecordKind = "recipes"
	RecordNutrition    RecordKind = "nutrition"
)

// Record is an extracted structured record attached to an assistant reply.
// Exactly one of the payload pointers is set, matching Kind.
type Record struct {
	Kind         RecordKind               `json:"kind"`
	Prescription *extract.Prescription    `json:"prescription,omitempty"`
	HealthPlan   *extract.HealthPlan      `json:"health_plan,omitempty"`
	Recipes      []extract.Recipe         `json:"recipes,omitempty"`
	Nutrition    *extract.NutritionReport `json:"nutrition,omitempty"`
}
