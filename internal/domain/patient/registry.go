package patient

import (
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/internal/platform/validation"
)

// Registry filter names.
const (
	FilterGender         = "gender"
	FilterBloodGroup     = "bloodGroup"
	FilterCity           = "city"
	FilterMinAge         = "minAge"
	FilterMaxAge         = "maxAge"
	FilterRegisteredFrom = "registeredFrom"
	FilterRegisteredTo   = "registeredTo"
)

// RegistrySchema is the query codec of the patient registry. Search matches
// name, mobile number or patient id.
var RegistrySchema = query.MustSchema(query.Config{
	Filters: []query.Filter{
		{Name: FilterGender, Kind: query.String, Options: Genders},
		{Name: FilterBloodGroup, Kind: query.String, Options: BloodGroups},
		{Name: FilterCity, Kind: query.String},
		{Name: FilterMinAge, Kind: query.Number},
		{Name: FilterMaxAge, Kind: query.Number},
		{Name: FilterRegisteredFrom, Kind: query.Date},
		{Name: FilterRegisteredTo, Kind: query.Date},
	},
	SortKeys:         []string{"createdAt", "fullName", "age"},
	DefaultSort:      "createdAt",
	DefaultDirection: query.Desc,
	DefaultPageSize:  10,
})

// FilterRules checks filter form input before it is applied to the browser.
var FilterRules = validation.RuleSet{
	FilterMinAge: {validation.NumericRange(0, 120, "Age must be between 0 and 120")},
	FilterMaxAge: {validation.NumericRange(0, 120, "Age must be between 0 and 120")},
	FilterRegisteredFrom: {
		validation.DateNotFuture("Start date cannot be in the future"),
	},
	FilterRegisteredTo: {
		validation.DateNotBefore(FilterRegisteredFrom, "End date must not be before start date"),
	},
}
