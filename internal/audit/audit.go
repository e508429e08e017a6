// Package audit implements the registrar's optional subscribe/unsubscribe
// ledger: a best-effort Postgres write performed after the registrar's
// per-key spinlock has already been released, so a slow database round
// trip never holds up other keys. The write is synchronous: the calling
// Subscribe or Handle release returns only after it completes. A failed
// write is logged and never propagated back to the caller.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"l2broker/internal/catalog"
	"l2broker/internal/obs"
	"l2broker/pkg/conn"
)

// Event is one row of the subscribe/unsubscribe ledger. CorrelationID is a
// UUID rather than the autoincrement ID so it stays stable if the ledger is
// ever sharded across more than one Postgres instance.
type Event struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	CorrelationID string `gorm:"type:uuid;index"`
	Exchange      uint16 `gorm:"index:idx_audit_key"`
	Symbol        uint32 `gorm:"index:idx_audit_key"`
	Product       uint8  `gorm:"index:idx_audit_key"`
	Kind          string `gorm:"size:16"`
	Timestamp     time.Time
}

const (
	kindSubscribe   = "subscribe"
	kindUnsubscribe = "unsubscribe"
)

// Ledger is a registrar.Auditor backed by a Postgres table via gorm.
type Ledger struct {
	client *conn.Client
	trace  *obs.TraceGenerator
}

// Open connects to Postgres using dsn and migrates the ledger table.
func Open(dsn string) (*Ledger, error) {
	client, err := conn.New(conn.Option{ConnString: dsn})
	if err != nil {
		return nil, err
	}
	if err := client.DB().AutoMigrate(&Event{}); err != nil {
		return nil, err
	}
	return &Ledger{client: client, trace: obs.NewTraceGenerator(0)}, nil
}

// RecordSubscribe implements registrar.Auditor.
func (l *Ledger) RecordSubscribe(key catalog.Key) {
	l.record(key, kindSubscribe)
}

// RecordUnsubscribe implements registrar.Auditor.
func (l *Ledger) RecordUnsubscribe(key catalog.Key) {
	l.record(key, kindUnsubscribe)
}

func (l *Ledger) record(key catalog.Key, kind string) {
	if l == nil || l.client == nil {
		return
	}
	ev := Event{
		CorrelationID: uuid.New().String(),
		Exchange:      uint16(key.Exchange),
		Symbol:        uint32(key.Symbol),
		Product:       uint8(key.Product),
		Kind:          kind,
		Timestamp:     time.Now().UTC(),
	}
	if err := l.client.DB().Create(&ev).Error; err != nil {
		logs.Warnf("audit: trace=%d record %s for %+v failed: %v", l.trace.Next(), kind, key, err)
	}
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}

var _ interface {
	RecordSubscribe(catalog.Key)
	RecordUnsubscribe(catalog.Key)
} = (*Ledger)(nil)
