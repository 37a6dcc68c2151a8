package cassandra

import (
	"context"
	"time"

	"github.com/gocql/gocql"
	"github.com/sirupsen/logrus"
)

// Ledger appends granted claims to Cassandra for auditing. It is write
// only: the counters enforce the caps, the ledger just remembers who got
// what and when it lapses.
type Ledger struct {
	session *gocql.Session
	logger  *logrus.Logger
}

func NewLedger(logger *logrus.Logger, session *gocql.Session) *Ledger {
	return &Ledger{
		session: session,
		logger:  logger,
	}
}

func (l *Ledger) Record(ctx context.Context, userID string, offerIDs []string, grantedAt, expiresAt time.Time) error {
	batch := l.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)

	for _, offerID := range offerIDs {
		batch.Query(
			`INSERT INTO svc_offerings.grants (user_id, offer_id, granted_at, expires_at) VALUES (?, ?, ?, ?)`,
			userID, offerID, grantedAt, expiresAt)
	}

	if err := l.session.ExecuteBatch(batch); err != nil {
		return err
	}

	return nil
}
