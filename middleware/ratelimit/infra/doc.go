// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: mapa Fingerprint -> RateState com limpeza por ociosidade e capacidade
//   - DecisionCache: LRU com expiração para decisões de bypass
//   - EnvSource / WatchPolicyFile: política via ambiente/.env com recarga
//   - MemoryStatsStore, RedisStatsStore, PrometheusStats: estatísticas
//   - SemaphorePool: limite de requisições em voo
package infra
