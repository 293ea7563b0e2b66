package registry

import "github.com/ijara-kitoblar/library-bot/internal/domain"

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

// RegisterInput carries one registration request. ExternalAccount is present
// when the member registers through the bot and absent for front-desk
// registrations.
type RegisterInput struct {
	GivenName       string
	FamilyName      string
	Phone           string
	BirthYear       int
	Affiliation     string
	ExternalAccount *domain.ExternalAccountID
}

// ProfilePatch is an admin correction of member data. None of the fields may
// be null: all profile data is mandatory.
type ProfilePatch struct {
	GivenName   Optional[string]
	FamilyName  Optional[string]
	Phone       Optional[string]
	BirthYear   Optional[int]
	Affiliation Optional[string]
}
