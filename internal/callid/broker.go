// Package callid manages the hand-off from a client-minted placeholder
// call id to the id the voice provider assigns.
package callid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"prep/internal/interview"
	"prep/internal/keylock"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const PlaceholderPrefix = "pending_"

// Evicter drops a stale cache slot after a placeholder is rewritten.
type Evicter interface {
	Delete(ctx context.Context, callID string) error
}

type Broker struct {
	Store interview.Store
	Cache Evicter
	Log   logrus.FieldLogger
	Now   func() time.Time

	// Locks is shared with the webhook correlator.
	Locks *keylock.Set
}

func NewBroker(store interview.Store, cache Evicter, locks *keylock.Set, log logrus.FieldLogger) *Broker {
	if locks == nil {
		locks = keylock.New()
	}
	return &Broker{Store: store, Cache: cache, Log: log, Now: time.Now, Locks: locks}
}

// NewPlaceholder mints pending_<unix-millis>_<random hex>. The random part
// is a v4 uuid, so collisions are negligible for the life of the service.
func NewPlaceholder(now time.Time) string {
	return PlaceholderPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsPlaceholder reports whether id has the placeholder shape.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Begin mints a placeholder, records the durable placeholder row and, when
// the session belongs to a scheduled interview, makes it that interview's
// active call id.
func (b *Broker) Begin(ctx context.Context, owner interview.Owner, session interview.SessionMetadata) (string, error) {
	if owner.ID == "" {
		return "", fmt.Errorf("owner required: %w", interview.ErrInput)
	}

	meta, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	id := NewPlaceholder(b.Now())
	row := interview.Result{
		CallID:          id,
		OwnerID:         owner.ID,
		InterviewID:     session.InterviewID,
		Session:         datatypes.JSON(meta),
		ExtractedInfo:   datatypes.JSON("{}"),
		PreviousCallIDs: []string{},
	}
	if err := b.Store.CreatePlaceholder(ctx, &row); err != nil {
		return "", err
	}

	log := b.Log.WithFields(logrus.Fields{"placeholder_id": id, "owner_id": owner.ID})
	if session.InterviewID != nil {
		if err := b.Store.AttachCall(ctx, owner.ID, *session.InterviewID, id); err != nil {
			// the session still runs; only the linkage is lost
			log.WithError(err).WithField("interview_id", *session.InterviewID).Warn("could not attach call to interview")
		}
	}

	log.Info("call session started")
	return id, nil
}

// Promote rewrites placeholderID to providerID. It happens once per
// session: an unknown or already promoted placeholder is ErrNotFound, and a
// placeholder already promoted to another provider id is ErrInvariant.
func (b *Broker) Promote(ctx context.Context, placeholderID, providerID string) (*interview.Result, error) {
	placeholderID = strings.TrimSpace(placeholderID)
	providerID = strings.TrimSpace(providerID)
	if placeholderID == "" || providerID == "" {
		return nil, fmt.Errorf("placeholder and provider ids required: %w", interview.ErrInput)
	}
	if placeholderID == providerID {
		return nil, fmt.Errorf("provider id equals placeholder: %w", interview.ErrInput)
	}

	log := b.Log.WithFields(logrus.Fields{"placeholder_id": placeholderID, "provider_id": providerID})

	// held through the evictions so a concurrent webhook cannot re-cache
	// the pre-merge row
	unlock := b.Locks.Lock(placeholderID, providerID)
	defer unlock()

	r, err := b.Store.PromoteResult(ctx, placeholderID, providerID)
	if err != nil {
		switch {
		case errors.Is(err, interview.ErrInvariant):
			log.WithError(err).Error("call id promotion conflict")
		case errors.Is(err, interview.ErrNotFound):
			log.Info("promotion of unknown placeholder")
		default:
			log.WithError(err).Warn("call id promotion failed")
		}
		return nil, err
	}

	// a cached provider entry predates the merge; let reads hit the durable row
	if b.Cache != nil {
		for _, id := range []string{placeholderID, providerID} {
			if err := b.Cache.Delete(ctx, id); err != nil {
				log.WithError(err).WithField("evict_id", id).Warn("cache evict failed")
			}
		}
	}

	log.Info("call id promoted")
	return r, nil
}
