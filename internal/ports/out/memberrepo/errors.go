package memberrepo

import "errors"

var (
	// ErrNotFound indicates the requested member does not exist.
	ErrNotFound = errors.New("member not found")

	// ErrPhoneTaken indicates another member already owns the phone number.
	ErrPhoneTaken = errors.New("phone number already registered")

	// ErrAccountTaken indicates the external account is already bound to a
	// member.
	ErrAccountTaken = errors.New("external account already linked")

	// ErrAlreadyLinked indicates the member already has an external account;
	// the binding is set once and never overwritten.
	ErrAlreadyLinked = errors.New("member already linked")
)
