package tools

import "context"

// MockStore is a deterministic, in-memory Store for tests. Zero values of
// each field mean "not found" / "empty" for the corresponding tool.
type MockStore struct {
	Bookings map[string]Booking
	ByPhone  map[string]Booking
	Services []Service
	Hours    WorkingHours
	Policy   map[string]Policy
	FAQ      map[string]FAQ

	// Delay, if set, is awaited (honoring ctx) before every call returns;
	// used to exercise the router's timeout path.
	Delay func(ctx context.Context) error

	// Err, if set, is returned by every call instead of a result.
	Err error
}

func NewMockStore() *MockStore {
	return &MockStore{
		Bookings: map[string]Booking{},
		ByPhone:  map[string]Booking{},
		Policy:   map[string]Policy{},
		FAQ:      map[string]FAQ{},
	}
}

func (m *MockStore) wait(ctx context.Context) error {
	if m.Delay != nil {
		return m.Delay(ctx)
	}
	return nil
}

func (m *MockStore) LatestBooking(ctx context.Context, _ string, phone string) (Booking, bool, error) {
	if err := m.wait(ctx); err != nil {
		return Booking{}, false, err
	}
	if m.Err != nil {
		return Booking{}, false, m.Err
	}
	b, ok := m.ByPhone[phone]
	return b, ok, nil
}

func (m *MockStore) BookingByID(ctx context.Context, _ string, id string) (Booking, bool, error) {
	if err := m.wait(ctx); err != nil {
		return Booking{}, false, err
	}
	if m.Err != nil {
		return Booking{}, false, m.Err
	}
	b, ok := m.Bookings[id]
	return b, ok, nil
}

func (m *MockStore) BusinessServices(ctx context.Context, _ string) ([]Service, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Services, nil
}

func (m *MockStore) WorkingHours(ctx context.Context, _ string) (WorkingHours, error) {
	if err := m.wait(ctx); err != nil {
		return WorkingHours{}, err
	}
	if m.Err != nil {
		return WorkingHours{}, m.Err
	}
	return m.Hours, nil
}

func (m *MockStore) Policies(ctx context.Context, _ string, topic string) (Policy, bool, error) {
	if err := m.wait(ctx); err != nil {
		return Policy{}, false, err
	}
	if m.Err != nil {
		return Policy{}, false, m.Err
	}
	p, ok := m.Policy[topic]
	return p, ok, nil
}

func (m *MockStore) FAQs(ctx context.Context, _ string, topic string) (FAQ, bool, error) {
	if err := m.wait(ctx); err != nil {
		return FAQ{}, false, err
	}
	if m.Err != nil {
		return FAQ{}, false, m.Err
	}
	f, ok := m.FAQ[topic]
	return f, ok, nil
}
