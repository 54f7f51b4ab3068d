// Package tools implements the read-only tenant-scoped tool router (C5):
// schema validation, per-call timeouts, tenant isolation, and outcome
// tagging for the fixed tool catalogue the conversation engine exposes to
// the model.
package tools

// Name identifies one of the fixed, read-only tools available to every
// tenant.
type Name string

const (
	GetLatestBooking    Name = "get_latest_booking"
	GetBookingByID      Name = "get_booking_by_id"
	GetBusinessServices Name = "get_business_services"
	GetWorkingHours     Name = "get_working_hours"
	GetPolicies         Name = "get_policies"
	GetFAQs             Name = "get_faqs"
)

// Names lists the full public catalogue in a stable order, used to build
// the tool schema set offered to the model.
var Names = []Name{
	GetLatestBooking,
	GetBookingByID,
	GetBusinessServices,
	GetWorkingHours,
	GetPolicies,
	GetFAQs,
}

// requiredArgs lists the non-tenant arguments each tool requires.
var requiredArgs = map[Name][]string{
	GetLatestBooking:    {"customer_phone"},
	GetBookingByID:      {"booking_id"},
	GetBusinessServices: nil,
	GetWorkingHours:     nil,
	GetPolicies:         {"topic"},
	GetFAQs:             {"topic"},
}

func IsKnown(name Name) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}
