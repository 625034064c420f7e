// Package application contém os casos de uso do controle de admissão.
//
// Controller aplica a BypassPolicy, monta o Fingerprint e consome do bucket;
// ConcurrencyGate limita requisições em voo. Nenhum dos dois conhece net/http.
// Ex.: Controller.Decide(req) retorna uma domain.Decision
// (admitted/rejected/bypassed/fail_open + retry-after).
package application
