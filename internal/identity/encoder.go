package identity

import (
	"fmt"
	"strings"

	"github.com/ignite/cdp-activation/internal/domain"
)

// HashedUser carries the digests uploaded for one customer.
type HashedUser struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Empty reports whether no digest is present.
func (u HashedUser) Empty() bool { return u.Email == "" && u.Phone == "" }

// Consent selects which opt-in flag admits a customer to an upload.
type Consent string

const (
	ConsentEmail Consent = "email"
	ConsentSMS   Consent = "sms"
	ConsentAny   Consent = "any"
	ConsentNone  Consent = "none"
)

// ParseConsent maps a name to a Consent; "" selects ConsentEmail.
func ParseConsent(s string) (Consent, error) {
	switch c := Consent(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ConsentEmail, nil
	case ConsentEmail, ConsentSMS, ConsentAny, ConsentNone:
		return c, nil
	default:
		return "", fmt.Errorf("unknown consent mode %q", s)
	}
}

// Allows reports whether c admits the customer.
func (c Consent) Allows(p domain.CustomerProfile) bool {
	switch c {
	case ConsentNone:
		return true
	case ConsentSMS:
		return p.SMSOptedIn
	case ConsentAny:
		return p.EmailOptedIn || p.SMSOptedIn
	default:
		return p.EmailOptedIn
	}
}

// Encoder applies one hasher and calling code to every identifier, so all
// platform formatters produce comparable digests.
type Encoder struct {
	hasher      Hasher
	countryCode string
}

// NewEncoder defaults to SHA-256 and DefaultCountryCode.
func NewEncoder(h Hasher, countryCode string) *Encoder {
	if h == nil {
		h = SHA256Hasher{}
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &Encoder{hasher: h, countryCode: countryCode}
}

// Algorithm names the underlying hasher.
func (e *Encoder) Algorithm() string { return e.hasher.Name() }

// Text hashes any textual identifier (email, names, city).
func (e *Encoder) Text(raw string) string { return e.hasher.Hash(raw) }

// Phone normalizes to international digits before hashing.
func (e *Encoder) Phone(raw string) string {
	return e.hasher.Hash(NormalizePhone(raw, e.countryCode))
}

// User hashes one customer's email and phone.
func (e *Encoder) User(p domain.CustomerProfile) HashedUser {
	return HashedUser{
		Email: e.Text(p.Email),
		Phone: e.Phone(p.Phone),
	}
}

// HashCustomers consent-filters and hashes customers, preserving order.
// Customers without any usable identifier are dropped.
func (e *Encoder) HashCustomers(customers []domain.CustomerProfile, consent Consent) []HashedUser {
	users := make([]HashedUser, 0, len(customers))
	for _, c := range customers {
		if !consent.Allows(c) {
			continue
		}
		u := e.User(c)
		if u.Empty() {
			continue
		}
		users = append(users, u)
	}
	return users
}
