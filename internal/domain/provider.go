package domain

import "time"

// ProviderRecord describes an upstream sending provider. Provider rows are
// managed by operational tooling; this subsystem only reads them.
type ProviderRecord struct {
	ID                    string
	Name                  string
	Type                  NotificationType
	Priority              int
	Weight                int
	Active                bool
	SupportsInternational bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Usable reports whether the provider can carry a notification of the given
// type, honouring the international-capability flag.
func (p *ProviderRecord) Usable(t NotificationType, international bool) bool {
	if !p.Active || p.Type != t {
		return false
	}
	if international && !p.SupportsInternational {
		return false
	}
	return true
}
