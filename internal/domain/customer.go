package domain

// Tier is the coarse customer value label.
type Tier string

const (
	TierPremium    Tier = "premium"
	TierRegular    Tier = "regular"
	TierOccasional Tier = "occasional"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierPremium, TierRegular, TierOccasional:
		return true
	}
	return false
}

// CustomerProfile is one member of the population. Profiles are created once
// per data load and never mutated afterwards.
type CustomerProfile struct {
	CustomerID       string `json:"customer_id" db:"customer_id"`
	FirstName        string `json:"first_name" db:"first_name"`
	LastName         string `json:"last_name" db:"last_name"`
	Email            string `json:"email" db:"email"`
	Phone            string `json:"phone" db:"phone"`
	EmailHash        string `json:"email_hash,omitempty" db:"email_hash"`
	PhoneHash        string `json:"phone_hash,omitempty" db:"phone_hash"`
	City             string `json:"city" db:"city"`
	District         string `json:"district,omitempty" db:"district"`
	Age              int    `json:"age" db:"age"`
	Gender           string `json:"gender" db:"gender"`
	RegistrationDate string `json:"registration_date" db:"registration_date"`
	HasApp           bool   `json:"has_app" db:"has_app"`
	EmailOptedIn     bool   `json:"email_opted_in" db:"email_opted_in"`
	SMSOptedIn       bool   `json:"sms_opted_in" db:"sms_opted_in"`
	HasLoyaltyCard   bool   `json:"loyalty_card" db:"loyalty_card"`
	Segment          Tier   `json:"segment" db:"segment"`

	AvgMonthlyVisits   int  `json:"avg_monthly_visits,omitempty" db:"avg_monthly_visits"`
	PrefersPremiumFuel bool `json:"prefers_premium_fuel,omitempty" db:"prefers_premium_fuel"`
}
