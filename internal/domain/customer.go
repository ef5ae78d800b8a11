package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ============================================================
// Customer
// ============================================================

// Customer is a contact record the operators manage and publish cards for.
type Customer struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	Company         string    `json:"company"`
	Position        string    `json:"position"`
	ExternalUserID  string    `json:"external_user_id"` // LINE user id
	Address         string    `json:"address"`
	Website         string    `json:"website"`
	FacebookURL     string    `json:"facebook_url"`
	MapURL          string    `json:"map_url"`
	Notes           string    `json:"notes"`
	ContractEndDate *Date     `json:"contract_end_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CustomerSummary is a list entry for GET /customers.
type CustomerSummary struct {
	Customer
	HasPublishedCard bool `json:"has_published_card"`
}

// CustomerInput is the body for POST /customers.
type CustomerInput struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Company         string `json:"company"`
	Position        string `json:"position"`
	ExternalUserID  string `json:"external_user_id"`
	Address         string `json:"address"`
	Website         string `json:"website"`
	FacebookURL     string `json:"facebook_url"`
	MapURL          string `json:"map_url"`
	Notes           string `json:"notes"`
	ContractEndDate *Date  `json:"contract_end_date"`
}

// CustomerPatch is the body for PUT /customers/{id}. Absent fields keep their
// current value; contract_end_date accepts null to clear it.
type CustomerPatch struct {
	Name            *string      `json:"name"`
	Phone           *string      `json:"phone"`
	Email           *string      `json:"email"`
	Company         *string      `json:"company"`
	Position        *string      `json:"position"`
	ExternalUserID  *string      `json:"external_user_id"`
	Address         *string      `json:"address"`
	Website         *string      `json:"website"`
	FacebookURL     *string      `json:"facebook_url"`
	MapURL          *string      `json:"map_url"`
	Notes           *string      `json:"notes"`
	ContractEndDate OptionalDate `json:"contract_end_date"`
}

// NewCustomer validates the input and returns an unsaved customer.
func NewCustomer(in CustomerInput) (*Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ErrValidation{Field: "name", Message: "name is required"}
	}
	return &Customer{
		Name:            name,
		Phone:           strings.TrimSpace(in.Phone),
		Email:           strings.TrimSpace(in.Email),
		Company:         strings.TrimSpace(in.Company),
		Position:        strings.TrimSpace(in.Position),
		ExternalUserID:  strings.TrimSpace(in.ExternalUserID),
		Address:         in.Address,
		Website:         strings.TrimSpace(in.Website),
		FacebookURL:     strings.TrimSpace(in.FacebookURL),
		MapURL:          strings.TrimSpace(in.MapURL),
		Notes:           in.Notes,
		ContractEndDate: nonZeroDate(in.ContractEndDate),
	}, nil
}

func nonZeroDate(d *Date) *Date {
	if d == nil || d.IsZero() {
		return nil
	}
	return d
}

// Apply merges a patch into the customer.
func (c *Customer) Apply(p CustomerPatch) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return &ErrValidation{Field: "name", Message: "name cannot be empty"}
		}
		c.Name = name
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&c.Phone, p.Phone)
	set(&c.Email, p.Email)
	set(&c.Company, p.Company)
	set(&c.Position, p.Position)
	set(&c.ExternalUserID, p.ExternalUserID)
	set(&c.Address, p.Address)
	set(&c.Website, p.Website)
	set(&c.FacebookURL, p.FacebookURL)
	set(&c.MapURL, p.MapURL)
	set(&c.Notes, p.Notes)
	if p.ContractEndDate.Set {
		c.ContractEndDate = p.ContractEndDate.Value
	}
	return nil
}

// MergeNonEmpty copies every non-empty contact field of src into c.
// Used by the importer when it re-uses an existing customer.
func (c *Customer) MergeNonEmpty(src Customer) {
	merge := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	merge(&c.Company, src.Company)
	merge(&c.Phone, src.Phone)
	merge(&c.Email, src.Email)
	merge(&c.Website, src.Website)
	merge(&c.FacebookURL, src.FacebookURL)
	merge(&c.Address, src.Address)
	merge(&c.ExternalUserID, src.ExternalUserID)
}

// ============================================================
// Date
// ============================================================

const dateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, &ErrValidation{Field: "contract_end_date", Message: "expected format YYYY-MM-DD"}
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON leaves d zero for "" so an empty date input reads as unset.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &ErrValidation{Field: "contract_end_date", Message: "expected a string"}
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// OptionalDate distinguishes an absent field from an explicit null.
type OptionalDate struct {
	Set   bool
	Value *Date
}

func (o *OptionalDate) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	// the front-end sends "" when the date input is cleared
	if bytes.Equal(bytes.TrimSpace(b), []byte(`""`)) {
		o.Value = nil
		return nil
	}
	var d Date
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	o.Value = &d
	return nil
}
