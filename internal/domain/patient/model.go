package patient

import (
	"strings"
	"time"

	"github.com/bharatemr/practice/internal/platform/validation"
)

// Genders accepted by the registry.
var Genders = []string{"MALE", "FEMALE", "OTHER"}

// BloodGroups accepted by the registry.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// CountryCode is prefixed to every phone number sent to the server.
const CountryCode = "+91"

// Patient is one row of the patient registry.
type Patient struct {
	ID                     string    `json:"id" db:"id"`
	PatientID              string    `json:"patientId" db:"patient_code"`
	FullName               string    `json:"fullName" db:"full_name"`
	Mobile                 string    `json:"mobile" db:"mobile"`
	Email                  string    `json:"email,omitempty" db:"email"`
	DateOfBirth            string    `json:"dateOfBirth" db:"date_of_birth"`
	Age                    int       `json:"age" db:"-"`
	Gender                 string    `json:"gender" db:"gender"`
	BloodGroup             string    `json:"bloodGroup,omitempty" db:"blood_group"`
	Address                string    `json:"address,omitempty" db:"address"`
	City                   string    `json:"city" db:"city"`
	State                  string    `json:"state" db:"state"`
	Pincode                string    `json:"pincode,omitempty" db:"pincode"`
	EmergencyContactName   string    `json:"emergencyContactName,omitempty" db:"emergency_contact_name"`
	EmergencyContactNumber string    `json:"emergencyContactNumber,omitempty" db:"emergency_contact_number"`
	CreatedAt              time.Time `json:"createdAt" db:"created_at"`
}

// AgeAt returns the age in whole years on now, or 0 for an unparseable
// date of birth.
func AgeAt(dateOfBirth string, now time.Time) int {
	dob, err := time.Parse(validation.DateLayout, dateOfBirth)
	if err != nil {
		return 0
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// Onboarding is the new-patient form. Phone numbers are entered without
// the country code.
type Onboarding struct {
	FullName               string `json:"fullName"`
	MobileNumber           string `json:"mobileNumber"`
	Email                  string `json:"email"`
	DateOfBirth            string `json:"dateOfBirth"`
	Gender                 string `json:"gender"`
	BloodGroup             string `json:"bloodGroup"`
	Address                string `json:"address"`
	City                   string `json:"city"`
	State                  string `json:"state"`
	Pincode                string `json:"pincode"`
	EmergencyContactName   string `json:"emergencyContactName"`
	EmergencyContactNumber string `json:"emergencyContactNumber"`
}

// OnboardingRules mirrors the registration form's checks.
var OnboardingRules = validation.RuleSet{
	"fullName": {
		validation.Required("Full name is required"),
		validation.MinLength(3, "Full name must be at least 3 characters"),
		validation.MaxLength(100, "Full name must be at most 100 characters"),
	},
	"mobileNumber": {
		validation.Required("Mobile number is required"),
		validation.Pattern(`^[0-9]{10}$`, "Invalid mobile number"),
	},
	"email": {
		validation.Email("Invalid email address"),
	},
	"dateOfBirth": {
		validation.Required("Date of birth is required"),
		validation.DateNotFuture("Date of birth cannot be in the future"),
	},
	"gender": {
		validation.Required("Gender is required"),
		validation.OneOf("Please select a gender", Genders...),
	},
	"bloodGroup": {
		validation.OneOf("Please select a valid blood group", BloodGroups...),
	},
	"address": {validation.Required("Address is required")},
	"city":    {validation.Required("City is required")},
	"state":   {validation.Required("State is required")},
	"pincode": {
		validation.Required("Pincode is required"),
		validation.Pattern(`^[0-9]{6}$`, "Invalid pincode"),
	},
	"emergencyContactName": {validation.Required("Emergency contact name is required")},
	"emergencyContactNumber": {
		validation.Required("Emergency contact number is required"),
		validation.Pattern(`^[0-9]{10}$`, "Invalid mobile number"),
	},
}

func (o Onboarding) values() map[string]string {
	return map[string]string{
		"fullName":               o.FullName,
		"mobileNumber":           o.MobileNumber,
		"email":                  o.Email,
		"dateOfBirth":            o.DateOfBirth,
		"gender":                 o.Gender,
		"bloodGroup":             o.BloodGroup,
		"address":                o.Address,
		"city":                   o.City,
		"state":                  o.State,
		"pincode":                o.Pincode,
		"emergencyContactName":   o.EmergencyContactName,
		"emergencyContactNumber": o.EmergencyContactNumber,
	}
}

// Validate checks the form as of now. A nil result means it can be sent.
func (o Onboarding) Validate(now time.Time) validation.Errors {
	return OnboardingRules.ValidateAt(o.values(), now)
}

// Payload returns the body sent to the server, with trimmed values and
// country-coded phone numbers.
func (o Onboarding) Payload() Onboarding {
	p := Onboarding{
		FullName:               strings.TrimSpace(o.FullName),
		MobileNumber:           withCountryCode(o.MobileNumber),
		Email:                  strings.TrimSpace(o.Email),
		DateOfBirth:            strings.TrimSpace(o.DateOfBirth),
		Gender:                 strings.TrimSpace(o.Gender),
		BloodGroup:             strings.TrimSpace(o.BloodGroup),
		Address:                strings.TrimSpace(o.Address),
		City:                   strings.TrimSpace(o.City),
		State:                  strings.TrimSpace(o.State),
		Pincode:                strings.TrimSpace(o.Pincode),
		EmergencyContactName:   strings.TrimSpace(o.EmergencyContactName),
		EmergencyContactNumber: withCountryCode(o.EmergencyContactNumber),
	}
	return p
}

func withCountryCode(n string) string {
	n = strings.TrimSpace(n)
	if n == "" || strings.HasPrefix(n, "+") {
		return n
	}
	return CountryCode + n
}
