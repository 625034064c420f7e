// Package ratelimit fornece adapters HTTP (net/http) para controle de admissão
// e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: Fingerprint, RateState, Policy, erros e contratos (sem net/http)
//   - application: Controller (bypass, fingerprint, consumo, operações de gestão) e ConcurrencyGate
//   - infra: store de buckets, caches de decisão, fontes de política, estatísticas, semáforo
//   - ratelimit (este pacote): middlewares HTTP, rotas de gestão e tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Monta a visão da requisição (endereço, User-Agent, cookies, headers, query)
//  2. Controller.Decide aplica bypass e consome do bucket do cliente
//  3. Se rejeitado, responde 429 com Retry-After (503 quando falta vaga de concorrência)
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// A política vem de variáveis RATE_* (ver infra.EnvSource); o binário gateway
// (cmd/gateway) também lê CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
