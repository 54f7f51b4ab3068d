// Package sinks implements the booking-writer and SMS-sender side-effect
// collaborators a call invokes at most once each: writing the confirmed
// booking record and sending the confirmation text, both external to this
// module's own authority over the call itself.
package sinks

import "context"

// Booking is the record written once a call's conversation produces a
// complete booking intent.
type Booking struct {
	TenantID      string
	CallID        string
	CustomerName  string
	CustomerPhone string
	ServiceName   string
	StartsAt      string
}

// BookingSink persists a new booking. Implementations must be safe to call
// at most once per call; the caller is responsible for that invariant.
type BookingSink interface {
	CreateBooking(ctx context.Context, b Booking) error
}

// SMSMessage is a single outbound confirmation text.
type SMSMessage struct {
	ToPhone string
	Body    string
}

// SMSSink sends a single SMS. Failures are recorded by the caller and must
// never fail the call itself.
type SMSSink interface {
	SendSMS(ctx context.Context, msg SMSMessage) error
}
