package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps paginated results with the next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RoleLevel is the coarse numeric authority level supplied by the identity provider.
type RoleLevel int

const (
	// RoleLevelCustomer identifies ordinary portal customers.
	RoleLevelCustomer RoleLevel = 1
	// RoleLevelAdmin identifies back-office staff allowed to manage orders.
	RoleLevelAdmin RoleLevel = 2
	// RoleLevelSuperAdmin identifies administrators who also manage staff accounts.
	RoleLevelSuperAdmin RoleLevel = 3
)

// Principal is the authenticated actor passed explicitly into every core operation.
type Principal struct {
	ID        string
	Email     string
	RoleLevel RoleLevel
}

// IsAdmin reports whether the principal may perform back-office writes.
func (p Principal) IsAdmin() bool {
	return p.RoleLevel >= RoleLevelAdmin
}

// CanActFor reports whether the principal owns the customer scope or is an admin.
func (p Principal) CanActFor(customerID string) bool {
	if p.IsAdmin() {
		return true
	}
	id := strings.TrimSpace(p.ID)
	return id != "" && id == strings.TrimSpace(customerID)
}

// Address is a postal address block copied by value into orders.
type Address struct {
	Recipient  string
	Company    string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// IsBlank reports whether the address lacks the fields required for shipping.
func (a Address) IsBlank() bool {
	return strings.TrimSpace(a.Line1) == "" ||
		strings.TrimSpace(a.City) == "" ||
		strings.TrimSpace(a.Country) == ""
}

// Customer is the read-only customer profile owned by the identity/catalog collaborator.
type Customer struct {
	ID                 string
	CompanyName        string
	ContactName        string
	Email              string
	Phone              string
	BillingAddress     Address
	ShippingAddress    Address
	VATNumber          string
	RegistrationNumber string
	RoleLevel          RoleLevel
	UpdatedAt          time.Time
}

// SupplierInfo describes the selling company printed on invoices.
type SupplierInfo struct {
	CompanyName        string
	Address            Address
	Email              string
	Phone              string
	VATNumber          string
	RegistrationNumber string
	BankName           string
	BankAccount        string
	SwiftCode          string
}
