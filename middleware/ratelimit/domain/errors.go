package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited é a causa de toda Rejection (errors.Is).
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrPolicyNotReady indica que a configuração ainda não está disponível.
	// O controller libera as requisições enquanto isso.
	ErrPolicyNotReady = errors.New("rate limit policy not ready")
)

// Rejection é o único erro que atravessa a fronteira do controller.
type Rejection struct {
	RetryAfterSeconds int
	Fingerprint       Fingerprint
	Limit             int
}

func (e *Rejection) Error() string {
	if e.RetryAfterSeconds > 0 {
		return fmt.Sprintf("too many requests: limit of %d exceeded, retry after %d seconds", e.Limit, e.RetryAfterSeconds)
	}
	return fmt.Sprintf("too many requests: limit of %d exceeded", e.Limit)
}

func (e *Rejection) Unwrap() error { return ErrRateLimited }

func IsRejection(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// AsRejection extrai a Rejection de err, se houver.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
