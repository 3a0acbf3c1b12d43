// Package suppliers is the master directory of vendors purchase orders are
// placed with.
package suppliers

import "time"

// Supplier is a vendor record. Purchase orders snapshot the name at creation,
// so renaming a supplier never rewrites order history.
type Supplier struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contactPerson,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	PaymentTerms  string    `json:"paymentTerms,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Patch carries optional supplier updates.
type Patch struct {
	Code          *string
	Name          *string
	ContactPerson *string
	Email         *string
	Phone         *string
	Address       *string
	PaymentTerms  *string
	IsActive      *bool
}
