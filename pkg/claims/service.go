package claims

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tarun-engg-dpm/offerings/pkg/offers"
)

// ErrExpiryNotFuture is returned for batches whose shared expiry is not
// strictly after the current time. Such a batch never reaches the store.
var ErrExpiryNotFuture = errors.New("claim expiry is not in the future")

// GrantLedger records granted claims for auditing. Ledger failures must
// not fail the claim; the counters are the source of truth.
type GrantLedger interface {
	Record(ctx context.Context, userID string, offerIDs []string, grantedAt, expiresAt time.Time) error
}

// NoopLedger discards grant records.
type NoopLedger struct{}

func (NoopLedger) Record(context.Context, string, []string, time.Time, time.Time) error {
	return nil
}

type metrics struct {
	grantedTotal  prometheus.Counter
	deniedTotal   prometheus.Counter
	batchesTotal  prometheus.Counter
	failedBatches prometheus.Counter
}

func newMetrics(r prometheus.Registerer) *metrics {
	var m metrics

	m.grantedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "claims_granted_total",
		Help: "Total granted claim tuples",
	})

	m.deniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "claims_denied_total",
		Help: "Total denied claim tuples",
	})

	m.batchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "claims_batches_total",
		Help: "Total claim batches evaluated",
	})

	m.failedBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "claims_batches_failed_total",
		Help: "Total claim batches that failed before producing a result",
	})

	r.MustRegister(m.grantedTotal, m.deniedTotal, m.batchesTotal, m.failedBatches)
	return &m
}

// Service assembles claim batches from the offer catalog and runs them
// through a granter. Counter keys are scoped to the current date so every
// reset cycle starts from empty counters even if a stale one survived.
type Service struct {
	catalog   offers.Catalog
	granter   Granter
	ledger    GrantLedger
	logger    *logrus.Logger
	metrics   *metrics
	now       func() time.Time
	resetHour int
}

func NewService(
	catalog offers.Catalog,
	granter Granter,
	ledger GrantLedger,
	logger *logrus.Logger,
	registerer prometheus.Registerer,
	now func() time.Time,
	resetHour int) *Service {

	return &Service{
		catalog:   catalog,
		granter:   granter,
		ledger:    ledger,
		logger:    logger,
		metrics:   newMetrics(registerer),
		now:       now,
		resetHour: resetHour,
	}
}

// Claim attempts to claim the given offers for one user and returns the
// offer ids that were granted, in request order. Unknown offer ids fail
// the whole batch before any counter is touched.
func (s *Service) Claim(ctx context.Context, userID string, offerIDs []string) ([]string, error) {
	if userID == "" || len(offerIDs) == 0 {
		return nil, errors.Wrap(ErrMalformedBatch, "claim needs a user id and at least one offer id")
	}

	now := s.now()
	date := now.Format("20060102")
	userKey := "user_offer:" + userID + ":" + date

	batch := Batch{
		Tuples:   make([]Tuple, 0, len(offerIDs)),
		ExpireAt: nextReset(now, s.resetHour),
	}
	idByOfferKey := make(map[string]string, len(offerIDs))

	for _, id := range offerIDs {
		offer, err := s.catalog.GetOffer(id)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving offer %q", id)
		}

		t := Tuple{
			OfferKey: "offer:" + id + ":" + date,
			UserKey:  userKey,
			OfferCap: offer.OfferCap,
			UserCap:  offer.UserCap,
		}

		// An unenforced cap side still counts usage but can never deny.
		switch offer.Type {
		case offers.CapGlobalOnly:
			t.UserCap = NoCap
		case offers.CapUserOnly:
			t.OfferCap = NoCap
		}

		idByOfferKey[t.OfferKey] = id
		batch.Tuples = append(batch.Tuples, t)
	}

	grantedKeys, err := s.grant(ctx, batch)
	if err != nil {
		return nil, err
	}

	granted := make([]string, 0, len(grantedKeys))
	for _, key := range grantedKeys {
		granted = append(granted, idByOfferKey[key])
	}

	if len(granted) > 0 {
		if err := s.ledger.Record(ctx, userID, granted, now, batch.ExpireAt); err != nil {
			s.logger.Errorf("recording grants for user %s: %v", userID, err)
		}
	}

	return granted, nil
}

// GrantRaw runs an already-decoded batch against the granter. It is the
// low-level invocation surface: callers bring their own keys and caps.
func (s *Service) GrantRaw(ctx context.Context, batch Batch) ([]string, error) {
	return s.grant(ctx, batch)
}

func (s *Service) grant(ctx context.Context, batch Batch) ([]string, error) {
	if !batch.ExpireAt.After(s.now()) {
		return nil, errors.Wrapf(ErrExpiryNotFuture, "expiry %d", batch.ExpireAt.Unix())
	}

	granted, err := s.granter.Grant(ctx, batch)
	if err != nil {
		s.metrics.failedBatches.Inc()
		return nil, errors.Wrap(err, "granting claim batch")
	}

	s.metrics.batchesTotal.Inc()
	s.metrics.grantedTotal.Add(float64(len(granted)))
	s.metrics.deniedTotal.Add(float64(len(batch.Tuples) - len(granted)))

	return granted, nil
}

// nextReset returns the shared expiry for counters created now: the
// following day at the configured hour. Keys are date-scoped, so the
// overhang past midnight acts as a grace period, never a double grant.
func nextReset(now time.Time, hour int) time.Time {
	next := now.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), hour, 0, 0, 0, now.Location())
}
