package alert

import (
	"context"
	"sync"

	"fimon/logger"
)

// Channel pairs a notifier with its enable flag for the current cycle.
type Channel struct {
	Notifier Notifier
	Enabled  bool
}

type channelState struct {
	last    Signature
	enabled bool
}

// Deduplicator keeps per-channel state so that an unchanged change set is
// announced once, while every transition to a different set, including the
// return to all clear, is announced again.
type Deduplicator struct {
	mu               sync.Mutex
	renotifyOnEnable bool
	channels         map[string]*channelState
}

func NewDeduplicator(renotifyOnEnable bool) *Deduplicator {
	return &Deduplicator{
		renotifyOnEnable: renotifyOnEnable,
		channels:         map[string]*channelState{},
	}
}

// SetRenotifyOnEnable controls whether re-enabling a channel forgets what it
// last announced.
func (d *Deduplicator) SetRenotifyOnEnable(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renotifyOnEnable = v
}

// Evaluate runs one cycle for every channel and returns the names of the
// channels that were notified. Delivery errors are logged; the message still
// counts as announced.
func (d *Deduplicator) Evaluate(ctx context.Context, channels []Channel, msg Message) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	sig := NewSignature(msg.Changes)
	var notified []string
	for _, ch := range channels {
		if ch.Notifier == nil {
			continue
		}
		name := ch.Notifier.Name()
		st, ok := d.channels[name]
		if !ok {
			st = &channelState{enabled: ch.Enabled}
			d.channels[name] = st
		}

		if !ch.Enabled {
			if st.enabled {
				if s, ok := ch.Notifier.(Stopper); ok {
					s.Stop()
				}
			}
			st.enabled = false
			continue
		}
		if !st.enabled && d.renotifyOnEnable {
			st.last = Signature{}
		}
		st.enabled = true

		if sig.Equal(st.last) {
			logger.Debugf("Suppressing duplicate %s alert (signature %016x)", name, sig.Digest())
			continue
		}
		if err := ch.Notifier.Notify(ctx, msg); err != nil {
			logger.Warnf("%v", &TransportError{Channel: name, Err: err})
		}
		st.last = sig
		notified = append(notified, name)
	}
	return notified
}
