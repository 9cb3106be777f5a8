package outbox

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Publisher delivers one message. Send returns once the broker has accepted it.
type Publisher interface {
	Send(ctx context.Context, key, value []byte) error
}

const DefaultMaxRetries = 10

// Relay moves NEW and retryable FAILED records to a Publisher in height
// order and removes them once acknowledged.
type Relay struct {
	box        *Outbox
	pub        Publisher
	interval   time.Duration
	maxRetries uint32
}

func NewRelay(box *Outbox, pub Publisher, interval time.Duration) *Relay {
	return &Relay{box: box, pub: pub, interval: interval, maxRetries: DefaultMaxRetries}
}

type pending struct {
	height uint64
	rec    Record
}

// Flush attempts every deliverable record once. It stops at the first
// failure so later blocks are never published ahead of earlier ones.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var batch []pending
	err := r.box.Scan(func(height uint64, rec Record) error {
		switch rec.State {
		case StateNew, StateSent:
			batch = append(batch, pending{height, rec})
		case StateFailed:
			if rec.Retries < r.maxRetries {
				batch = append(batch, pending{height, rec})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range batch {
		if err := r.box.UpdateState(p.height, StateSent, p.rec.Retries); err != nil {
			return sent, err
		}
		if err := r.pub.Send(ctx, p.rec.Key, p.rec.Payload); err != nil {
			log.WithFields(log.Fields{"height": p.height, "retries": p.rec.Retries + 1}).Warnf("outbox: publish failed: %v", err)
			if uerr := r.box.UpdateState(p.height, StateFailed, p.rec.Retries+1); uerr != nil {
				return sent, uerr
			}
			return sent, err
		}
		if err := r.box.UpdateState(p.height, StateAcked, p.rec.Retries); err != nil {
			return sent, err
		}
		if err := r.box.Delete(p.height); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil && ctx.Err() == nil {
				log.Printf("outbox: relay: %v", err)
			}
			if n > 0 {
				log.Debugf("outbox: published %d receipts", n)
			}
		}
	}
}
