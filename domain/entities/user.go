package entities

import (
	"strconv"
	"time"
)

// User is an account holder. The password is stored as a bcrypt hash and
// never serialized.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Name         string    `json:"name" gorm:"size:255"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Profile *HealthProfile `json:"profile,omitempty" gorm:"foreignKey:UserID"`
}

// HealthProfile holds the medical profile injected into every prompt.
type HealthProfile struct {
	UserID      string    `json:"-" gorm:"primaryKey;size:36"`
	Age         int       `json:"age"`
	Sex         string    `json:"sex" gorm:"size:20"`
	HeightCm    int       `json:"height_cm"`
	WeightKg    int       `json:"weight_kg"`
	Conditions  string    `json:"conditions" gorm:"type:text"`
	Medications string    `json:"medications" gorm:"type:text"`
	Allergies   string    `json:"allergies" gorm:"type:text"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PromptSummary renders the profile as a compact block for system prompts.
// Unset fields are omitted so the model is not fed placeholder noise.
func (p *HealthProfile) PromptSummary() string {
	if p == nil {
		return ""
	}
	summary := "Patient profile:"
	empty := true
	appendField := func(label, value string) {
		if value != "" {
			summary += "\n- " + label + ": " + value
			empty = false
		}
	}
	if p.Age > 0 {
		appendField("Age", strconv.Itoa(p.Age))
	}
	appendField("Sex", p.Sex)
	if p.HeightCm > 0 {
		appendField("Height", strconv.Itoa(p.HeightCm)+" cm")
	}
	if p.WeightKg > 0 {
		appendField("Weight", strconv.Itoa(p.WeightKg)+" kg")
	}
	appendField("Known conditions", p.Conditions)
	appendField("Current medications", p.Medications)
	appendField("Allergies", p.Allergies)
	if empty {
		return ""
	}
	return summary
}
