package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-capital/atlas-portal/internal/identity"
)

// Store is the contract of the backend that owns identities and tokens.
type Store interface {
	CurrentSession(ctx context.Context, token string) (identity.State, error)
	Subscribe(token string, fn func(identity.State)) (cancel func())
	SignIn(ctx context.Context, token, email, password string) (identity.Identity, error)
	SignUp(ctx context.Context, token, email, password, name string) (identity.Identity, error)
	SignOut(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, email string) error
}

// Reason classifies session failures.
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonDuplicateAccount   Reason = "duplicate_account"
	ReasonWeakPassword       Reason = "weak_password"
	ReasonInvalidInput       Reason = "invalid_input"
	ReasonUnavailable        Reason = "unavailable"
)

// Failure is the only error type returned by Store and Provider operations.
type Failure struct {
	Reason Reason
	Err    error
}

// Fail builds a Failure wrapping err.
func Fail(reason Reason, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "session: " + string(f.Reason)
	}
	return fmt.Sprintf("session: %s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Message returns the text shown next to the form that triggered the failure.
func (f *Failure) Message() string {
	switch f.Reason {
	case ReasonInvalidCredentials:
		return "Email ou senha inválidos"
	case ReasonDuplicateAccount:
		return "Já existe uma conta com este email"
	case ReasonWeakPassword:
		return "A senha deve ter pelo menos 6 caracteres"
	case ReasonInvalidInput:
		return "Verifique os dados informados"
	default:
		return "Serviço indisponível. Tente novamente em instantes"
	}
}

// AsFailure converts any error into a Failure, classifying unknown errors as
// unavailable.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Fail(ReasonUnavailable, err)
}

// ReasonOf returns the failure reason of err or the empty Reason.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}
