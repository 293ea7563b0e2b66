package adminrepo

import "errors"

var (
	// ErrNotFound indicates no active grant matches.
	ErrNotFound = errors.New("admin not found")

	// ErrAccountTaken indicates the external account already carries an
	// active grant.
	ErrAccountTaken = errors.New("account is already an admin")

	// ErrSuperExists indicates an active super-admin is already present.
	ErrSuperExists = errors.New("super admin already exists")
)
