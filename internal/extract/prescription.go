package extract

// Prescription is the structured view over one AI-doctor reply.
type Prescription struct {
	Symptoms    string `json:"symptoms"`
	Diagnosis   string `json:"diagnosis"`
	Medications string `json:"medications"`
	Advice      string `json:"advice"`
	FollowUp    string `json:"follow_up"`
}

var prescriptionFields = []Field{
	{Label: "Reported Symptoms", Key: "symptoms", Default: "Symptoms as described in your message"},
	{Label: "Diagnosis Summary", Key: "diagnosis", Default: "General assessment based on the reported symptoms"},
	{Label: "Recommended Medications", Key: "medications", Default: "No specific medications suggested; consult a clinician before taking anything"},
	{Label: "General Advice", Key: "advice", Default: "Personalized recommendations based on your health profile"},
	{Label: "Follow-Up", Key: "follow_up", Default: "See a healthcare professional if symptoms persist or worsen"},
}

// LooksLikePrescription reports whether a reply appears to carry a medical
// record. Substring heuristics, deliberately matching the prompt contract.
func LooksLikePrescription(text string) bool {
	return containsAny(text,
		"Reported Symptoms:",
		"Diagnosis Summary:",
		"Recommended Medications:",
	)
}

// ParsePrescription slices a reply into the five medical-record fields.
// Missing fields get documented defaults; a reply with zero recognized
// labels yields a minimal record synthesized from the user's own input, so
// the caller always has something to render.
func ParsePrescription(reply, userInput string) *Prescription {
	fields, matched := fill(reply, prescriptionFields)
	p := &Prescription{
		Symptoms:    fields["symptoms"],
		Diagnosis:   fields["diagnosis"],
		Medications: fields["medications"],
		Advice:      fields["advice"],
		FollowUp:    fields["follow_up"],
	}
	if matched == 0 && userInput != "" {
		p.Symptoms = userInput
	}
	return p
}
