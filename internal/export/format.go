// Package export turns matched customers into platform upload files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/identity"
)

// ErrUnknownPlatform is returned when no schema exists for a platform.
var ErrUnknownPlatform = domain.ErrUnknownPlatform

// GoogleCountry is the constant Country column of Google files.
const GoogleCountry = "TR"

// Source says which customer attribute fills a column.
type Source int

const (
	SourceEmail Source = iota
	SourcePhone
	SourceFirstName
	SourceLastName
	SourceCity
	SourceConstant
)

// Column is one field of a platform schema.
type Column struct {
	Header   string
	Source   Source
	Constant string
}

// Schema is the ordered field set a platform accepts.
type Schema struct {
	Platform domain.Platform
	Columns  []Column
}

var schemas = map[domain.Platform]Schema{
	domain.PlatformMeta: {
		Platform: domain.PlatformMeta,
		Columns: []Column{
			{Header: "email", Source: SourceEmail},
			{Header: "phone", Source: SourcePhone},
			{Header: "fn", Source: SourceFirstName},
			{Header: "ln", Source: SourceLastName},
			{Header: "ct", Source: SourceCity},
		},
	},
	domain.PlatformGoogle: {
		Platform: domain.PlatformGoogle,
		Columns: []Column{
			{Header: "Email", Source: SourceEmail},
			{Header: "Phone", Source: SourcePhone},
			{Header: "First Name", Source: SourceFirstName},
			{Header: "Last Name", Source: SourceLastName},
			{Header: "Country", Source: SourceConstant, Constant: GoogleCountry},
		},
	},
	domain.PlatformTikTok: {
		Platform: domain.PlatformTikTok,
		Columns: []Column{
			{Header: "EMAIL_SHA256", Source: SourceEmail},
			{Header: "PHONE_SHA256", Source: SourcePhone},
		},
	},
}

// SchemaFor returns the schema of p.
func SchemaFor(p domain.Platform) (Schema, error) {
	s, ok := schemas[p]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
	return s, nil
}

// Options selects the optional identifier groups written to a file and
// the opt-in a customer needs to appear in it. A zero Consent requires
// email opt-in, as identity.ParseConsent("") does.
type Options struct {
	IncludeEmail bool             `json:"include_email"`
	IncludePhone bool             `json:"include_phone"`
	IncludeName  bool             `json:"include_name"`
	IncludeCity  bool             `json:"include_city"`
	Consent      identity.Consent `json:"consent"`
}

// DefaultOptions enables email and phone for every platform and keeps
// email opt-ins only.
func DefaultOptions() Options {
	return Options{IncludeEmail: true, IncludePhone: true, Consent: identity.ConsentEmail}
}

func (o Options) includes(src Source) bool {
	switch src {
	case SourceEmail:
		return o.IncludeEmail
	case SourcePhone:
		return o.IncludePhone
	case SourceFirstName, SourceLastName:
		return o.IncludeName
	case SourceCity:
		return o.IncludeCity
	}
	return true
}

// Table is a formatted export: a fixed header and one row per consenting
// customer that produced at least one hashed identifier.
type Table struct {
	Platform domain.Platform `json:"platform"`
	Header   []string        `json:"header"`
	Rows     [][]string      `json:"rows"`
}

// Len is the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// WriteCSV writes the header and rows. An empty table writes nothing.
func (t *Table) WriteCSV(w io.Writer) error {
	if len(t.Rows) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	return nil
}

// Formatter hashes customer identifiers into platform tables.
type Formatter struct {
	enc *identity.Encoder
}

// NewFormatter uses enc for every hashed column; nil selects the default
// SHA-256 encoder.
func NewFormatter(enc *identity.Encoder) *Formatter {
	if enc == nil {
		enc = identity.NewEncoder(nil, "")
	}
	return &Formatter{enc: enc}
}

// Format builds the table for platform p with the default encoder.
func Format(p domain.Platform, customers []domain.CustomerProfile, opts Options) (*Table, error) {
	return NewFormatter(nil).Format(p, customers, opts)
}

// Format maps the customers opts.Consent admits onto p's schema. Constant
// columns never make a row worth writing on their own.
func (f *Formatter) Format(p domain.Platform, customers []domain.CustomerProfile, opts Options) (*Table, error) {
	schema, err := SchemaFor(p)
	if err != nil {
		return nil, err
	}

	cols := make([]Column, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		if opts.includes(c.Source) {
			cols = append(cols, c)
		}
	}

	t := &Table{Platform: p, Header: make([]string, len(cols)), Rows: make([][]string, 0, len(customers))}
	for i, c := range cols {
		t.Header[i] = c.Header
	}

	for _, cust := range customers {
		if !opts.Consent.Allows(cust) {
			continue
		}
		row := make([]string, len(cols))
		hashed := false
		for i, c := range cols {
			v := f.value(c, cust)
			row[i] = v
			if c.Source != SourceConstant && v != "" {
				hashed = true
			}
		}
		if hashed {
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

func (f *Formatter) value(c Column, cust domain.CustomerProfile) string {
	switch c.Source {
	case SourceEmail:
		return f.enc.Text(cust.Email)
	case SourcePhone:
		return f.enc.Phone(cust.Phone)
	case SourceFirstName:
		return f.enc.Text(cust.FirstName)
	case SourceLastName:
		return f.enc.Text(cust.LastName)
	case SourceCity:
		return f.enc.Text(cust.City)
	case SourceConstant:
		return c.Constant
	}
	return ""
}
