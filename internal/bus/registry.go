package bus

import (
	"sort"
	"sync"

	"github.com/quartzlab/pulsebus/internal/schema"
)

// registry stores subscriptions keyed by event type plus a wildcard bucket.
// A plain mutex guards it so synchronous call sites (Subscribe, Unsubscribe,
// ListSubscriptions) never touch the dispatch path.
type registry struct {
	mu        sync.Mutex
	byType    map[schema.EventType]map[SubscriptionID]*subscription
	wildcards map[SubscriptionID]*subscription
	nextSeq   uint64
}

func newRegistry() *registry {
	return &registry{
		byType:    make(map[schema.EventType]map[SubscriptionID]*subscription),
		wildcards: make(map[SubscriptionID]*subscription),
	}
}

// add stores the subscription and stamps its registration sequence.
func (r *registry) add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	sub.seq = r.nextSeq

	if sub.eventType == schema.EventTypeWildcard {
		r.wildcards[sub.id] = sub
		return
	}
	bucket, ok := r.byType[sub.eventType]
	if !ok {
		bucket = make(map[SubscriptionID]*subscription)
		r.byType[sub.eventType] = bucket
	}
	bucket[sub.id] = sub
}

// remove deletes the subscription, reporting whether it existed.
func (r *registry) remove(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.wildcards[id]; ok {
		delete(r.wildcards, id)
		return true
	}
	for typ, bucket := range r.byType {
		if _, ok := bucket[id]; ok {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(r.byType, typ)
			}
			return true
		}
	}
	return false
}

// resolve snapshots the subscriptions matching the event type: exact-type
// matches plus every wildcard, ordered by registration sequence.
func (r *registry) resolve(typ schema.EventType) []*subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.byType[typ]
	matches := make([]*subscription, 0, len(bucket)+len(r.wildcards))
	for _, sub := range bucket {
		matches = append(matches, sub)
	}
	for _, sub := range r.wildcards {
		matches = append(matches, sub)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	return matches
}

// list returns a defensive snapshot of every subscription, stable by
// registration order within each bucket.
func (r *registry) list() []SubscriptionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SubscriptionInfo, 0, len(r.wildcards))
	for _, bucket := range r.byType {
		infos = append(infos, bucketInfos(bucket)...)
	}
	infos = append(infos, bucketInfos(r.wildcards)...)
	return infos
}

func bucketInfos(bucket map[SubscriptionID]*subscription) []SubscriptionInfo {
	subs := make([]*subscription, 0, len(bucket))
	for _, sub := range bucket {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })
	infos := make([]SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		infos = append(infos, sub.info())
	}
	return infos
}

// clear drops every subscription; used on bus shutdown.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType = make(map[schema.EventType]map[SubscriptionID]*subscription)
	r.wildcards = make(map[SubscriptionID]*subscription)
}
