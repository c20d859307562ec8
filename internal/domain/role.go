package domain

// Role is the privilege level of a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ValidRoles returns the set of valid user roles.
func ValidRoles() []Role {
	return []Role{RoleUser, RoleAdmin}
}

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if string(r) == role {
			return true
		}
	}
	return false
}

// AccountType distinguishes individual customers from company accounts.
type AccountType string

const (
	AccountCustomer AccountType = "CUSTOMER"
	AccountCompany  AccountType = "COMPANY"
)

// IsValidAccountType checks whether the given string is a known account type.
func IsValidAccountType(t string) bool {
	return t == string(AccountCustomer) || t == string(AccountCompany)
}
