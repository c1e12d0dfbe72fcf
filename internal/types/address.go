package types

// Address identifies an account: a depositor, a receiver, an approver or the
// vault itself. The deployment layer authenticates callers; the core treats
// addresses as opaque.
type Address string

// IsZero reports whether a is the empty address.
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}
