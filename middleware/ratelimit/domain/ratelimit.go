package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// BucketStore mapeia Fingerprint -> RateState.
//
// A implementação deve ser segura para acesso concorrente e garantir que, para
// um mesmo Fingerprint, exista no máximo um RateState vivo: com N goroutines
// chamando GetOrCreate ao mesmo tempo, factory roda uma única vez e todos
// recebem a mesma instância.
type BucketStore interface {
	GetOrCreate(fp Fingerprint, factory func() *RateState) *RateState
	Get(fp Fingerprint) (*RateState, bool)

	// Invalidate remove a entrada, qualquer que seja o estado.
	Invalidate(fp Fingerprint) bool
	// Discard remove a entrada somente se ela ainda aponta para st.
	Discard(fp Fingerprint, st *RateState) bool

	Len() int
	PurgeExpired(now time.Time) int
	Clear()
}

// Outcome classifica uma decisão de admissão.
type Outcome uint8

const (
	OutcomeAdmitted Outcome = iota
	OutcomeRejected
	OutcomeBypassed
	// OutcomeFailOpen: a checagem não pôde ser feita (política indisponível,
	// erro interno) e a requisição foi liberada.
	OutcomeFailOpen
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeBypassed:
		return "bypassed"
	case OutcomeFailOpen:
		return "fail_open"
	default:
		return "unknown"
	}
}

// Allowed indica se a requisição segue adiante.
func (o Outcome) Allowed() bool { return o != OutcomeRejected }

type Decision struct {
	Outcome Outcome
	// Reason detalha bypass/fail-open (ex.: "path", "user-agent").
	Reason      string
	Fingerprint Fingerprint

	Limit     int
	Remaining int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// Err retorna *Rejection quando a decisão bloqueia, nil caso contrário.
func (d Decision) Err() error {
	if d.Outcome != OutcomeRejected {
		return nil
	}
	return &Rejection{
		RetryAfterSeconds: int(d.RetryAfter / time.Second),
		Fingerprint:       d.Fingerprint,
		Limit:             d.Limit,
	}
}
