package results

import (
	"context"
	"errors"
	"time"

	"prep/internal/interview"
	"prep/internal/keylock"

	"github.com/sirupsen/logrus"
)

// Correlator reconciles provider webhooks with the durable store and the
// cache. The durable row is the source of truth; the cache serves reads
// issued right after delivery.
type Correlator struct {
	Store interview.Store
	Cache Cache
	Log   logrus.FieldLogger
	Now   func() time.Time

	// Locks must be the set the call id broker promotes under, so a
	// promotion never lands between a durable write and its cache mirror.
	Locks *keylock.Set
}

func NewCorrelator(store interview.Store, cache Cache, locks *keylock.Set, log logrus.FieldLogger) *Correlator {
	if locks == nil {
		locks = keylock.New()
	}
	return &Correlator{
		Store: store,
		Cache: cache,
		Log:   log,
		Now:   time.Now,
		Locks: locks,
	}
}

// Ingest normalizes raw, upserts the durable row for its call id (last
// delivery wins) and mirrors the stored record into the cache. Payloads
// without a call id write nothing. A delivery keyed by an already promoted
// placeholder lands on the provider row that absorbed it.
func (c *Correlator) Ingest(ctx context.Context, raw []byte) (*interview.Result, error) {
	n, err := Normalize(raw, c.Now())
	if err != nil {
		c.Log.WithError(err).Warn("rejecting webhook payload")
		return nil, err
	}

	log := c.Log.WithFields(logrus.Fields{"call_id": n.CallID, "call_id_source": n.CallIDSource})

	unlock := c.Locks.Lock(n.CallID, n.PlaceholderID)
	defer func() { unlock() }()

	if n.PlaceholderID != "" {
		c.adoptPlaceholder(ctx, log, n.PlaceholderID, n.CallID)
	}

	target, err := c.resolve(ctx, n.CallID)
	if err != nil {
		log.WithError(err).Error("call id lookup failed")
		return nil, err
	}
	if target != n.CallID {
		// promotion is permanent, so target stays valid across the relock
		unlock()
		unlock = c.Locks.Lock(n.CallID, target)
		log = log.WithField("promoted_to", target)
		log.Info("redirecting late delivery for promoted placeholder")
		n.CallID = target
	}

	stored, err := c.Store.UpsertResult(ctx, n.Result)
	if err != nil {
		if errors.Is(err, interview.ErrInvariant) {
			log.WithError(err).WithField("owner_id", n.OwnerID).Error("call id resolves to a different owner")
		} else {
			log.WithError(err).Error("durable upsert failed")
		}
		return nil, err
	}

	if err := c.Cache.Put(ctx, *stored); err != nil {
		log.WithError(err).Warn("cache write failed; durable row is authoritative")
	}

	log.WithFields(logrus.Fields{
		"owner_id":  stored.OwnerID,
		"sentiment": stored.Sentiment,
	}).Info("stored interview result")
	return stored, nil
}

// adoptPlaceholder finishes a hand-off the client never promoted: the
// provider echoed our placeholder alongside its own id.
func (c *Correlator) adoptPlaceholder(ctx context.Context, log logrus.FieldLogger, placeholderID, providerID string) {
	log = log.WithField("placeholder_id", placeholderID)

	_, err := c.Store.PromoteResult(ctx, placeholderID, providerID)
	switch {
	case err == nil:
		log.Info("promoted placeholder from webhook")
	case errors.Is(err, interview.ErrNotFound):
		// already promoted, or the session never went through Begin
		return
	case errors.Is(err, interview.ErrInvariant):
		log.WithError(err).Error("placeholder hand-off conflict")
		return
	default:
		log.WithError(err).Warn("placeholder promotion failed")
		return
	}

	if err := c.Cache.Delete(ctx, placeholderID); err != nil {
		log.WithError(err).Warn("cache evict failed")
	}
}

// resolve maps callID to the row that holds it. A placeholder that was
// promoted resolves to its provider id; anything else maps to itself.
func (c *Correlator) resolve(ctx context.Context, callID string) (string, error) {
	_, err := c.Store.FindResult(ctx, callID)
	if err == nil {
		return callID, nil
	}
	if !errors.Is(err, interview.ErrNotFound) {
		return "", err
	}

	r, err := c.Store.FindPromotedResult(ctx, callID)
	switch {
	case err == nil:
		return r.CallID, nil
	case errors.Is(err, interview.ErrNotFound):
		return callID, nil
	default:
		return "", err
	}
}

// GetLatest returns the freshest record for callID, cache first.
func (c *Correlator) GetLatest(ctx context.Context, callID string) (*interview.Result, error) {
	callID = CanonicalCallID(callID)
	if callID == "" {
		return nil, interview.ErrNotFound
	}

	r, err := c.Cache.Get(ctx, callID)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, interview.ErrNotFound) {
		c.Log.WithError(err).WithField("call_id", callID).Warn("cache read failed")
	}
	return c.Store.FindResult(ctx, callID)
}

// GetLatestForOwner returns the owner's most recently updated record.
func (c *Correlator) GetLatestForOwner(ctx context.Context, ownerID string) (*interview.Result, error) {
	if ownerID == "" {
		return nil, interview.ErrNotFound
	}

	r, err := c.Cache.LatestForOwner(ctx, ownerID)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, interview.ErrNotFound) {
		c.Log.WithError(err).WithField("owner_id", ownerID).Warn("cache read failed")
	}
	return c.Store.FindLatestResultForOwner(ctx, ownerID)
}
