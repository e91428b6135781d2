package parser

import (
	"github.com/insightdelivered/transcript-converter/internal/models"
)

// Header field names, as reported in MissingFieldsError.
const (
	FieldIdentity = "id/name"
	FieldCredits  = "credits attempted/passed"
	FieldStatus   = "status"
	FieldGPA      = "cumulative gpa"
)

// Header rules. The transcript prints labels in Indonesian:
//
//	NRP / Nama 5025201001 / Budi Santoso SKS Tempuh / SKS Lulus 144 / 140
//	Status Aktif Tahap: Sarjana ... IPK 3.41
var (
	identityRule = newRule(FieldIdentity, `(?s)NRP\s*/\s*Nama\s*(\d+)\s*/\s*(.*?)\s*SKS Tempuh`)
	creditsRule  = newRule(FieldCredits, `SKS\s*Tempuh\s*/\s*SKS\s*Lulus\s*(\d+)\s*/\s*(\d+)`)
	statusRule   = newRule(FieldStatus, `(?s)Status\s*(.*?)\s*(?:Tahap|---)`)
	gpaRule      = newRule(FieldGPA, `IPK\s*(\d+(?:\.\d+)?)`)

	prepGPARule      = newRule("preparatory gpa", `(?i)IP Tahap Persiapan\s*:\s*(\d+(?:\.\d+)?)`)
	prepCreditsRule  = newRule("preparatory credits", `(?i)Total Sks Tahap Persiapan\s*:\s*(\d+)`)
	underGPARule     = newRule("undergraduate gpa", `(?i)IP Tahap Sarjana\s*:\s*(\d+(?:\.\d+)?)`)
	underCreditsRule = newRule("undergraduate credits", `(?i)Total Sks Tahap Sarjana\s*:\s*(\d+)`)
)

// ParseHeader extracts the student profile from normalized transcript text.
// It returns a *MissingFieldsError naming every mandatory field it could not find.
func ParseHeader(text string) (models.StudentProfile, error) {
	var (
		profile models.StudentProfile
		missing []string
	)

	identity := identityRule.find(text)
	id, idOK := identity.text(0)
	name, nameOK := identity.text(1)
	if idOK && nameOK {
		profile.ID, profile.Name = id, name
	} else {
		missing = append(missing, identityRule.name)
	}

	credits := creditsRule.find(text)
	attempted, attOK := credits.integer(0)
	passed, passOK := credits.integer(1)
	if attOK && passOK {
		profile.CreditsAttempted, profile.CreditsPassed = attempted, passed
	} else {
		missing = append(missing, creditsRule.name)
	}

	// The label is mandatory; an empty value after it is not.
	if status, ok := statusRule.find(text).group(0); ok {
		profile.Status = collapseSpaces(status)
	} else {
		missing = append(missing, statusRule.name)
	}

	if gpa, ok := gpaRule.find(text).decimal(0); ok {
		profile.CumulativeGPA = gpa
	} else {
		missing = append(missing, gpaRule.name)
	}

	if len(missing) > 0 {
		return models.StudentProfile{}, &MissingFieldsError{Fields: missing}
	}

	profile.PreparatoryGPA = floatOr(prepGPARule.find(text).decimal(0))
	profile.PreparatoryCredits = intOr(prepCreditsRule.find(text).integer(0))
	profile.UndergraduateGPA = floatOr(underGPARule.find(text).decimal(0))
	profile.UndergraduateCredits = intOr(underCreditsRule.find(text).integer(0))

	return profile, nil
}
