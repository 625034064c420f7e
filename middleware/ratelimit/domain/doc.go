// Package domain define tipos e contratos do controle de admissão.
//
// Aqui vivem a identidade do cliente (Fingerprint), o contador por janela
// (RateState), o snapshot de configuração (Policy) e os contratos de store,
// estatísticas e pool de vagas. O pacote não depende de net/http nem de
// implementações concretas.
package domain
