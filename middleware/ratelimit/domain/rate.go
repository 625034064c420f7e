package domain

import (
	"sync/atomic"
	"time"
)

// Result é o resultado de RateState.Consume.
type Result uint8

const (
	ResultSuccess Result = iota
	ResultFailed
	// ResultDeprecated indica um estado ocioso que não pode mais ser usado;
	// quem recebe deve removê-lo do store e tentar de novo.
	ResultDeprecated
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailed:
		return "failed"
	case ResultDeprecated:
		return "deprecated"
	default:
		return "unknown"
	}
}

// maxWindowShift limita DoubleWindow a 2^20 vezes a janela original.
const maxWindowShift = 20

// window é imutável; cada consumo publica uma nova via CAS.
type window struct {
	start     int64 // ms
	remaining int64
}

// RateState é o contador de janela fixa de um único Fingerprint.
//
// Todas as operações são lock-free. O par (início da janela, permissões
// restantes) vive num único ponteiro atômico, então rollover e decremento
// acontecem juntos: nunca há mais de `capacity` sucessos por janela.
type RateState struct {
	capacity   int64
	baseWindow int64 // ms

	win        atomic.Pointer[window]
	windowLen  atomic.Int64 // ms; dobra com DoubleWindow
	lastAccess atomic.Int64 // ms do último SUCCESS
	lastLog    atomic.Int64 // ms; 0 = nunca logado
	deprecated atomic.Bool
}

// NewRateState cria um estado com a janela iniciando em now e capacidade cheia.
func NewRateState(capacity int, length time.Duration, now time.Time) *RateState {
	if capacity < 0 {
		capacity = 0
	}
	ms := length.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	n := now.UnixMilli()
	s := &RateState{
		capacity:   int64(capacity),
		baseWindow: ms,
	}
	s.win.Store(&window{start: n, remaining: int64(capacity)})
	s.windowLen.Store(ms)
	s.lastAccess.Store(n)
	return s
}

// Consume tenta consumir uma permissão em now.
func (s *RateState) Consume(now time.Time) Result {
	if s.deprecated.Load() {
		return ResultDeprecated
	}
	n := now.UnixMilli()
	for {
		cur := s.win.Load()
		start, remaining := cur.start, cur.remaining
		if n-start >= s.windowLen.Load() {
			start, remaining = n, s.capacity
		}
		if remaining <= 0 {
			return ResultFailed
		}
		if s.win.CompareAndSwap(cur, &window{start: start, remaining: remaining - 1}) {
			s.lastAccess.Store(n)
			return ResultSuccess
		}
	}
}

// MarkDeprecatedIfElapsed marca o estado como obsoleto se o último acesso
// for mais antigo que threshold. Retorna true se o estado está obsoleto.
func (s *RateState) MarkDeprecatedIfElapsed(now time.Time, threshold time.Duration) bool {
	if s.deprecated.Load() {
		return true
	}
	if now.UnixMilli()-s.lastAccess.Load() > threshold.Milliseconds() {
		s.deprecated.Store(true)
		return true
	}
	return false
}

// Deprecate marca o estado como obsoleto incondicionalmente (remoção do store).
func (s *RateState) Deprecate() { s.deprecated.Store(true) }

// DoubleWindow dobra a duração da janela sem mexer nas permissões restantes.
// Retorna a nova duração.
func (s *RateState) DoubleWindow() time.Duration {
	limit := s.baseWindow << maxWindowShift
	for {
		cur := s.windowLen.Load()
		next := cur * 2
		if next > limit {
			next = limit
		}
		if s.windowLen.CompareAndSwap(cur, next) {
			return time.Duration(next) * time.Millisecond
		}
	}
}

// ShouldLog permite no máximo um log a cada interval para este estado.
// Só o goroutine que vence o CAS recebe true.
func (s *RateState) ShouldLog(now time.Time, interval time.Duration) bool {
	n := now.UnixMilli()
	prev := s.lastLog.Load()
	if prev != 0 && n-prev < interval.Milliseconds() {
		return false
	}
	return s.lastLog.CompareAndSwap(prev, n)
}

// Remaining retorna as permissões restantes como seriam vistas em now.
func (s *RateState) Remaining(now time.Time) int {
	cur := s.win.Load()
	if now.UnixMilli()-cur.start >= s.windowLen.Load() {
		return int(s.capacity)
	}
	return int(cur.remaining)
}

func (s *RateState) Capacity() int { return int(s.capacity) }

func (s *RateState) Window() time.Duration {
	return time.Duration(s.windowLen.Load()) * time.Millisecond
}

func (s *RateState) WindowStart() time.Time { return time.UnixMilli(s.win.Load().start) }

func (s *RateState) LastAccess() time.Time { return time.UnixMilli(s.lastAccess.Load()) }

func (s *RateState) Deprecated() bool { return s.deprecated.Load() }

// RetryAfterSeconds é a duração atual da janela em segundos inteiros.
func (s *RateState) RetryAfterSeconds() int {
	return int(s.windowLen.Load() / 1000)
}
