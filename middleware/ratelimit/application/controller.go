package application

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// maxAdmitAttempts limita as novas tentativas quando o bucket encontrado
	// já está obsoleto. Esgotado, a checagem libera a requisição.
	maxAdmitAttempts = 8

	rejectionLogInterval = 60 * time.Second
	warnInterval         = 10 * time.Second
)

// Controller é a fachada de admissão: aplica a BypassPolicy, monta o
// Fingerprint, consome do bucket e expõe as operações administrativas.
//
// Erros internos nunca bloqueiam tráfego: sem Policy ou com panic de um
// colaborador, a requisição é liberada (fail-open).
type Controller struct {
	store  domain.BucketStore
	bypass *BypassPolicy
	source domain.PolicySource
	log    logrus.FieldLogger
	now    func() time.Time

	snap      atomic.Pointer[Snapshot]
	processed atomic.Int64
	warn      rate.Sometimes
}

type Option func(*controllerConfig)

type controllerConfig struct {
	store     domain.BucketStore
	source    domain.PolicySource
	policy    *domain.Policy
	external  func(domain.Request) bool
	log       logrus.FieldLogger
	now       func() time.Time
	cacheSize int
	cacheTTL  time.Duration
}

func WithStore(s domain.BucketStore) Option {
	return func(c *controllerConfig) { c.store = s }
}

// WithPolicySource faz o controller carregar a Policy de src. Enquanto src
// retornar domain.ErrPolicyNotReady, o controller libera tudo.
func WithPolicySource(src domain.PolicySource) Option {
	return func(c *controllerConfig) { c.source = src }
}

// WithPolicy instala uma Policy fixa (ignorada se houver PolicySource).
func WithPolicy(p domain.Policy) Option {
	return func(c *controllerConfig) { c.policy = &p }
}

// WithExternalPredicate adiciona uma regra de isenção extra, avaliada por último.
func WithExternalPredicate(fn func(domain.Request) bool) Option {
	return func(c *controllerConfig) { c.external = fn }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *controllerConfig) { c.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *controllerConfig) { c.now = now }
}

func WithDecisionCache(size int, ttl time.Duration) Option {
	return func(c *controllerConfig) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// NewController monta o controller. Sem WithPolicy nem WithPolicySource, usa
// domain.DefaultPolicy.
func NewController(opts ...Option) (*Controller, error) {
	cfg := controllerConfig{
		log: logrus.StandardLogger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = infra.NewStore(infra.WithStoreClock(cfg.now))
	}

	c := &Controller{
		store:  cfg.store,
		bypass: NewBypassPolicy(cfg.external, cfg.cacheSize, cfg.cacheTTL),
		source: cfg.source,
		log:    cfg.log,
		now:    cfg.now,
		warn:   rate.Sometimes{Interval: warnInterval},
	}

	switch {
	case cfg.source != nil:
		if err := c.Reload(); err != nil && !errors.Is(err, domain.ErrPolicyNotReady) {
			return nil, err
		}
	case cfg.policy != nil:
		if err := c.SetPolicy(*cfg.policy); err != nil {
			return nil, err
		}
	default:
		if err := c.SetPolicy(domain.DefaultPolicy()); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Policy retorna o snapshot atual; ok=false enquanto não houver configuração.
func (c *Controller) Policy() (domain.Policy, bool) {
	s := c.snap.Load()
	if s == nil {
		return domain.Policy{}, false
	}
	return s.Policy.Clone(), true
}

// SetPolicy compila e instala p. Se o limite ou a janela mudarem, os buckets
// existentes são descartados.
func (c *Controller) SetPolicy(p domain.Policy) error {
	s, err := Compile(p)
	if err != nil {
		return fmt.Errorf("invalid rate limit policy: %w", err)
	}

	if cs, ok := c.store.(interface {
		Configure(idleTTL time.Duration, capacity int)
	}); ok {
		cs.Configure(s.IdleTTL(), s.StoreCapacity)
	}

	prev := c.snap.Swap(s)
	c.bypass.Reset()
	if prev != nil && (prev.MaxPermits != s.MaxPermits || prev.Window != s.Window) {
		c.store.Clear()
	}

	c.log.WithFields(logrus.Fields{
		"max_permits": s.MaxPermits,
		"window":      s.Window,
		"capacity":    s.StoreCapacity,
		"disabled":    s.Disabled(),
	}).Info("rate limit policy installed")
	return nil
}

// Reload relê a PolicySource. Em erro, o snapshot anterior continua valendo.
func (c *Controller) Reload() error {
	if c.source == nil {
		return nil
	}
	p, err := c.source.Load()
	if err != nil {
		if errors.Is(err, domain.ErrPolicyNotReady) {
			c.log.WithError(err).Debug("rate limit policy not ready")
		} else {
			c.log.WithError(err).Error("failed to load rate limit policy")
		}
		return err
	}
	if err := c.SetPolicy(p); err != nil {
		c.log.WithError(err).Error("failed to install rate limit policy")
		return err
	}
	return nil
}

// CheckRequest retorna *domain.Rejection se a requisição excedeu o limite e
// nil em qualquer outro caso.
func (c *Controller) CheckRequest(req domain.Request) error {
	return c.Decide(req).Err()
}

// Decide é CheckRequest com o detalhe da decisão.
func (c *Controller) Decide(req domain.Request) (d domain.Decision) {
	defer func() {
		if r := recover(); r != nil {
			c.warnf(logrus.Fields{"panic": r}, "rate limit check panicked, letting request through")
			d = domain.Decision{Outcome: domain.OutcomeFailOpen, Reason: "panic"}
		}
	}()

	s := c.snap.Load()
	if s == nil {
		c.log.Debug("rate limit policy not ready, skipping check")
		return domain.Decision{Outcome: domain.OutcomeFailOpen, Reason: "not-ready"}
	}
	if ok, reason := c.bypass.Exempt(req, s); ok {
		return domain.Decision{Outcome: domain.OutcomeBypassed, Reason: string(reason)}
	}

	c.processed.Add(1)
	return c.admit(c.fingerprint(req, s), s.MaxPermits, s.Window, true)
}

// Fingerprint monta a identidade de req segundo a Policy atual.
func (c *Controller) Fingerprint(req domain.Request) (fp domain.Fingerprint, err error) {
	s := c.snap.Load()
	if s == nil {
		return domain.Fingerprint{}, domain.ErrPolicyNotReady
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build fingerprint: %v", r)
		}
	}()
	return c.fingerprint(req, s), nil
}

func (c *Controller) fingerprint(req domain.Request, s *Snapshot) domain.Fingerprint {
	port := 0
	if s.ConsiderRemotePort {
		port = req.RemotePort()
	}
	var ua *string
	if v, ok := req.UserAgent(); ok {
		ua = &v
	}
	parts := make([]domain.KeyPart, 0, len(s.parts))
	for _, p := range s.parts {
		parts = append(parts, p.Part(req))
	}
	return domain.NewFingerprint(req.RemoteAddr(), port, ua, parts...)
}

// Admit consome uma permissão de fp, criando o bucket se preciso.
// maxPermits <= 0 ou window <= 0 desliga o limite.
func (c *Controller) Admit(fp domain.Fingerprint, maxPermits int, window time.Duration) error {
	if maxPermits <= 0 || window <= 0 {
		return nil
	}
	return c.admit(fp, maxPermits, window, true).Err()
}

// OptAdmit é Admit sem criar estado: sem bucket para fp, retorna (false, nil).
// Com bucket, (true, nil) se consumiu ou (false, *domain.Rejection) se esgotou.
func (c *Controller) OptAdmit(fp domain.Fingerprint, maxPermits int, window time.Duration) (bool, error) {
	if maxPermits <= 0 || window <= 0 {
		return true, nil
	}
	d := c.admit(fp, maxPermits, window, false)
	switch d.Outcome {
	case domain.OutcomeAdmitted:
		return true, nil
	case domain.OutcomeRejected:
		return false, d.Err()
	default:
		return false, nil
	}
}

func (c *Controller) admit(fp domain.Fingerprint, maxPermits int, window time.Duration, create bool) domain.Decision {
	now := c.now()
	factory := func() *domain.RateState { return domain.NewRateState(maxPermits, window, now) }

	for attempt := 0; attempt < maxAdmitAttempts; attempt++ {
		var st *domain.RateState
		if create {
			st = c.store.GetOrCreate(fp, factory)
		} else {
			var ok bool
			if st, ok = c.store.Get(fp); !ok {
				return domain.Decision{Outcome: domain.OutcomeFailOpen, Reason: "absent", Fingerprint: fp}
			}
		}

		switch st.Consume(now) {
		case domain.ResultSuccess:
			return domain.Decision{
				Outcome:     domain.OutcomeAdmitted,
				Fingerprint: fp,
				Limit:       st.Capacity(),
				Remaining:   st.Remaining(now),
			}
		case domain.ResultFailed:
			retryAfter := time.Duration(st.RetryAfterSeconds()) * time.Second
			if st.ShouldLog(now, rejectionLogInterval) {
				ua, _ := fp.UserAgent()
				c.log.WithFields(logrus.Fields{
					"fingerprint": fp.HashHex(),
					"remote":      fp.RemoteAddr(),
					"user_agent":  ua,
					"retry_after": int(retryAfter / time.Second),
				}).Info("request rejected by rate limit")
			}
			return domain.Decision{
				Outcome:     domain.OutcomeRejected,
				Fingerprint: fp,
				Limit:       st.Capacity(),
				RetryAfter:  retryAfter,
			}
		case domain.ResultDeprecated:
			c.store.Discard(fp, st)
		}
	}

	c.warnf(logrus.Fields{"fingerprint": fp.HashHex(), "attempts": maxAdmitAttempts},
		"rate limit bucket kept expiring, letting request through")
	return domain.Decision{Outcome: domain.OutcomeFailOpen, Reason: "retries", Fingerprint: fp}
}

// Remove zera o limite de fp: o próximo acesso cria um bucket cheio.
func (c *Controller) Remove(fp domain.Fingerprint) bool {
	return c.store.Invalidate(fp)
}

// RemoveFor é Remove para o cliente de req (ex.: no logout).
func (c *Controller) RemoveFor(req domain.Request) bool {
	fp, err := c.Fingerprint(req)
	if err != nil {
		return false
	}
	return c.Remove(fp)
}

// DoubleWindow dobra a janela do bucket de fp, se existir, sem devolver
// permissões.
func (c *Controller) DoubleWindow(fp domain.Fingerprint) bool {
	st, ok := c.store.Get(fp)
	if !ok {
		return false
	}
	w := st.DoubleWindow()
	c.log.WithFields(logrus.Fields{"fingerprint": fp.HashHex(), "window": w}).Info("rate limit window doubled")
	return true
}

// ProcessedCount é o total de checagens que chegaram a um bucket.
func (c *Controller) ProcessedCount() int64 { return c.processed.Load() }

// SlotCount é o número de buckets vivos.
func (c *Controller) SlotCount() int { return c.store.Len() }

func (c *Controller) Clear() { c.store.Clear() }

// Purge remove os buckets ociosos agora.
func (c *Controller) Purge() int { return c.store.PurgeExpired(c.now()) }

func (c *Controller) warnf(fields logrus.Fields, msg string) {
	c.warn.Do(func() { c.log.WithFields(fields).Warn(msg) })
}
