package state

import (
	"fmt"

	"crowdsale/native/crowdsale"
)

type storedEffect struct {
	Key      string
	Kind     string
	From     [20]byte
	To       [20]byte
	Quantity storedQuantity
	Memo     string
}

func outboxEffectKey(key string) []byte {
	return append(append([]byte(nil), outboxEffectPrefix...), key...)
}

// Outbox holds effects produced by committed calls until the asset services
// acknowledge them. Effects are enqueued in the same trie commit as the state
// change that produced them.
type Outbox struct {
	manager *Manager
}

// Outbox returns the effect outbox bound to the manager.
func (m *Manager) Outbox() *Outbox {
	if m == nil {
		return nil
	}
	return &Outbox{manager: m}
}

// Enqueue appends effects in order. Re-enqueueing a known key is a no-op.
func (o *Outbox) Enqueue(effects []crowdsale.Effect) error {
	if o == nil || o.manager == nil {
		return fmt.Errorf("outbox: unavailable")
	}
	for _, effect := range effects {
		if effect.Key == "" {
			return fmt.Errorf("outbox: effect key required")
		}
		record := &storedEffect{
			Key:      effect.Key,
			Kind:     string(effect.Kind),
			From:     effect.From,
			To:       effect.To,
			Quantity: toStoredQuantity(effect.Quantity),
			Memo:     effect.Memo,
		}
		if err := o.manager.KVPut(outboxEffectKey(effect.Key), record); err != nil {
			return err
		}
		if err := o.manager.KVAppend(outboxPendingKey, []byte(effect.Key)); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns up to limit undelivered effects in enqueue order. A
// non-positive limit returns everything.
func (o *Outbox) Pending(limit int) ([]crowdsale.Effect, error) {
	if o == nil || o.manager == nil {
		return nil, fmt.Errorf("outbox: unavailable")
	}
	var keys [][]byte
	if err := o.manager.KVGetList(outboxPendingKey, &keys); err != nil {
		return nil, err
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	effects := make([]crowdsale.Effect, 0, len(keys))
	for _, key := range keys {
		var record storedEffect
		ok, err := o.manager.KVGet(outboxEffectKey(string(key)), &record)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("outbox: effect %s missing", key)
		}
		effects = append(effects, crowdsale.Effect{
			Key:      record.Key,
			Kind:     crowdsale.EffectKind(record.Kind),
			From:     record.From,
			To:       record.To,
			Quantity: record.Quantity.quantity(),
			Memo:     record.Memo,
		})
	}
	return effects, nil
}

// Ack removes delivered effects. Unknown keys are ignored so a repeated
// acknowledgement is harmless.
func (o *Outbox) Ack(keys []string) error {
	if o == nil || o.manager == nil {
		return fmt.Errorf("outbox: unavailable")
	}
	if len(keys) == 0 {
		return nil
	}
	drop := make([][]byte, 0, len(keys))
	for _, key := range keys {
		drop = append(drop, []byte(key))
		if err := o.manager.KVDelete(outboxEffectKey(key)); err != nil {
			return err
		}
	}
	return o.manager.KVRemove(outboxPendingKey, drop)
}
