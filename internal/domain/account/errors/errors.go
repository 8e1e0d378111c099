package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrDuplicateUsername  = errors.New("user with username already exists")
	ErrDuplicateEmail     = errors.New("user with email already exists")
	ErrAccountNotFound    = errors.New("user does not exist")
	ErrChannelNotFound    = errors.New("channel does not exist")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenReused        = errors.New("refresh token expired or used")
	ErrUploadFailed       = errors.New("upload failed")
	ErrAvatarUploadFailed = fmt.Errorf("%w: avatar", ErrUploadFailed)
	ErrInconsistentState  = errors.New("inconsistent state")
	ErrPersistence        = errors.New("persistence error")

	// ErrNotFound is returned by store adapters; services translate it.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by store adapters on a unique violation
	// they could not attribute to a column.
	ErrAlreadyExists = errors.New("already exists")
)

type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindDuplicateUsername  Kind = "DuplicateUsername"
	KindDuplicateEmail     Kind = "DuplicateEmail"
	KindAccountNotFound    Kind = "AccountNotFound"
	KindChannelNotFound    Kind = "ChannelNotFound"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindTokenInvalid       Kind = "TokenInvalid"
	KindTokenExpired       Kind = "TokenExpired"
	KindTokenReused        Kind = "TokenReused"
	KindUploadFailed       Kind = "UploadFailed"
	KindInconsistentState  Kind = "InconsistentState"
	KindPersistence        Kind = "PersistenceError"
	KindInternal           Kind = "InternalError"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrDuplicateUsername, KindDuplicateUsername},
	{ErrDuplicateEmail, KindDuplicateEmail},
	{ErrAccountNotFound, KindAccountNotFound},
	{ErrChannelNotFound, KindChannelNotFound},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrTokenReused, KindTokenReused},
	{ErrTokenExpired, KindTokenExpired},
	{ErrTokenInvalid, KindTokenInvalid},
	{ErrUploadFailed, KindUploadFailed},
	{ErrInconsistentState, KindInconsistentState},
	{ErrPersistence, KindPersistence},
}

// KindOf reports the closed error kind of err. Anything outside the taxonomy
// is KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func NewValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func WrapPersistence(err error, context string) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, context, err)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsDuplicateUsername(err error) bool {
	return errors.Is(err, ErrDuplicateUsername)
}

func IsDuplicateEmail(err error) bool {
	return errors.Is(err, ErrDuplicateEmail)
}

func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func IsChannelNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}

func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

func IsTokenInvalid(err error) bool {
	return errors.Is(err, ErrTokenInvalid)
}

func IsTokenExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

func IsTokenReused(err error) bool {
	return errors.Is(err, ErrTokenReused)
}

func IsUploadFailed(err error) bool {
	return errors.Is(err, ErrUploadFailed)
}

func IsInconsistentState(err error) bool {
	return errors.Is(err, ErrInconsistentState)
}

func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
