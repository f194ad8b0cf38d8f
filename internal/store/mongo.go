package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prep/internal/interview"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collInterviews = "interviews"
	collResults    = "interview_results"
	collCounters   = "counters"
)

// Mongo is the document-store flavour of interview.Store.
type Mongo struct {
	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique call id index the upsert relies on.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(collResults).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "call_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "previous_call_ids", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("result indexes: %w", err)
	}
	if _, err := s.db.Collection(collInterviews).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "done", Value: 1}, {Key: "scheduled_date", Value: 1}}},
		{Keys: bson.D{{Key: "call_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("interview indexes: %w", err)
	}
	return nil
}

func (s *Mongo) nextID(ctx context.Context, name string) (uint64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(collCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return uint64(doc.Seq), nil
}

func (s *Mongo) CreateInterview(ctx context.Context, iv *interview.Interview) error {
	id, err := s.nextID(ctx, collInterviews)
	if err != nil {
		return transient("allocate interview id", err)
	}
	now := time.Now()
	iv.ID = id
	iv.Priority = interview.NormalizePriority(iv.Priority)
	iv.CreatedAt, iv.UpdatedAt = now, now
	if _, err := s.db.Collection(collInterviews).InsertOne(ctx, iv); err != nil {
		return transient("create interview", err)
	}
	return nil
}

func (s *Mongo) FindInterviewsDue(ctx context.Context, from, to time.Time) ([]interview.Interview, error) {
	filter := bson.M{
		"done": false,
		"scheduled_date": bson.M{
			"$gte": dateOnly(from),
			"$lt":  dateOnly(to).Add(24 * time.Hour),
		},
	}
	cur, err := s.db.Collection(collInterviews).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, transient("find interviews due", err)
	}
	var rows []interview.Interview
	if err := cur.All(ctx, &rows); err != nil {
		return nil, transient("decode interviews", err)
	}
	return rows, nil
}

func (s *Mongo) MarkInterviewDone(ctx context.Context, ownerID string, interviewID uint64) error {
	res, err := s.db.Collection(collInterviews).UpdateOne(ctx,
		bson.M{"_id": interviewID, "owner_id": ownerID},
		bson.M{"$set": bson.M{"done": true, "updated_at": time.Now()}},
	)
	if err != nil {
		return transient("mark interview done", err)
	}
	if res.MatchedCount == 0 {
		return interview.ErrNotFound
	}
	return nil
}

func (s *Mongo) AttachCall(ctx context.Context, ownerID string, interviewID uint64, callID string) error {
	res, err := s.db.Collection(collInterviews).UpdateOne(ctx,
		bson.M{"_id": interviewID, "owner_id": ownerID},
		bson.M{"$set": bson.M{"call_id": callID, "updated_at": time.Now()}},
	)
	if err != nil {
		return transient("attach call", err)
	}
	if res.MatchedCount == 0 {
		return interview.ErrNotFound
	}
	return nil
}

func (s *Mongo) findOneResult(ctx context.Context, filter any, opts ...*options.FindOneOptions) (*interview.Result, error) {
	var r interview.Result
	if err := s.db.Collection(collResults).FindOne(ctx, filter, opts...).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interview.ErrNotFound
		}
		return nil, transient("find result", err)
	}
	return &r, nil
}

func (s *Mongo) FindResult(ctx context.Context, callID string) (*interview.Result, error) {
	return s.findOneResult(ctx, bson.M{"call_id": callID})
}

func (s *Mongo) FindLatestResultForOwner(ctx context.Context, ownerID string) (*interview.Result, error) {
	return s.findOneResult(ctx, bson.M{"owner_id": ownerID},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

func (s *Mongo) CreatePlaceholder(ctx context.Context, r *interview.Result) error {
	now := time.Now()
	r.Phase = interview.PhasePlaceholder
	r.CreatedAt, r.UpdatedAt = now, now
	if r.ResultTimestamp.IsZero() {
		r.ResultTimestamp = now
	}
	if r.PreviousCallIDs == nil {
		r.PreviousCallIDs = []string{}
	}
	if _, err := s.db.Collection(collResults).InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("call id %s already exists: %w", r.CallID, interview.ErrInvariant)
		}
		return transient("create placeholder", err)
	}
	return nil
}

// UpsertResult matches on call id plus a compatible owner. A row owned by
// someone else does not match, so the upsert collides on the unique index.
func (s *Mongo) UpsertResult(ctx context.Context, in interview.Result) (*interview.Result, error) {
	now := time.Now()
	filter := bson.M{"call_id": in.CallID}
	set := bson.M{
		"phase":            interview.PhaseProvider,
		"summary":          in.Summary,
		"sentiment":        in.Sentiment,
		"transcript":       in.Transcript,
		"recording_ref":    in.RecordingRef,
		"extracted_info":   []byte(in.ExtractedInfo),
		"result_timestamp": in.ResultTimestamp,
		"updated_at":       now,
	}
	onInsert := bson.M{
		"created_at":        now,
		"session":           []byte("{}"),
		"previous_call_ids": []string{},
	}
	if len(in.RawPayload) > 0 {
		set["raw_payload"] = []byte(in.RawPayload)
	}
	if in.OwnerID != "" {
		filter["owner_id"] = bson.M{"$in": bson.A{"", in.OwnerID}}
		set["owner_id"] = in.OwnerID
	} else {
		onInsert["owner_id"] = ""
	}
	update := bson.M{"$set": set, "$setOnInsert": onInsert}

	_, err := s.db.Collection(collResults).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		cur, ferr := s.FindResult(ctx, in.CallID)
		if ferr == nil && interview.OwnerConflict(cur.OwnerID, in.OwnerID) {
			return nil, fmt.Errorf("call id %s owned by %s, payload claims %s: %w", in.CallID, cur.OwnerID, in.OwnerID, interview.ErrInvariant)
		}
		// lost an insert race with a same-owner writer; apply as an update
		_, err = s.db.Collection(collResults).UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return nil, transient("upsert result", err)
	}
	return s.FindResult(ctx, in.CallID)
}

func (s *Mongo) FindPromotedResult(ctx context.Context, placeholderID string) (*interview.Result, error) {
	return s.findOneResult(ctx, bson.M{"previous_call_ids": placeholderID})
}

// PromoteResult runs without a transaction. Each step is a single-document
// write whose filter fails when another writer got there first.
func (s *Mongo) PromoteResult(ctx context.Context, placeholderID, providerID string) (*interview.Result, error) {
	ph, err := s.FindResult(ctx, placeholderID)
	if errors.Is(err, interview.ErrNotFound) {
		return nil, s.promotionGone(ctx, placeholderID, providerID)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	target, err := s.FindResult(ctx, providerID)
	switch {
	case err == nil:
		if interview.OwnerConflict(target.OwnerID, ph.OwnerID) {
			return nil, fmt.Errorf("provider call %s owned by %s, placeholder by %s: %w", providerID, target.OwnerID, ph.OwnerID, interview.ErrInvariant)
		}
		if err := s.mergePromoted(ctx, *ph, providerID, now); err != nil {
			return nil, err
		}
	case errors.Is(err, interview.ErrNotFound):
		res, err := s.db.Collection(collResults).UpdateOne(ctx,
			bson.M{"call_id": placeholderID},
			bson.M{
				"$set":  bson.M{"call_id": providerID, "phase": interview.PhaseProvider, "updated_at": now},
				"$push": bson.M{"previous_call_ids": placeholderID},
			},
		)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("provider call %s appeared during promotion: %w", providerID, interview.ErrInvariant)
			}
			return nil, transient("promote result", err)
		}
		if res.MatchedCount == 0 {
			return nil, s.promotionGone(ctx, placeholderID, providerID)
		}
	default:
		return nil, err
	}

	if _, err := s.db.Collection(collInterviews).UpdateMany(ctx,
		bson.M{"call_id": placeholderID},
		bson.M{"$set": bson.M{"call_id": providerID, "updated_at": now}},
	); err != nil {
		return nil, transient("rewrite interview call id", err)
	}
	return s.FindResult(ctx, providerID)
}

// mergePromoted claims the placeholder by deleting it, then folds its
// linkage into the provider row with field-level updates so webhook fields
// written meanwhile survive. Owner, interview and session are only filled.
func (s *Mongo) mergePromoted(ctx context.Context, ph interview.Result, providerID string, now time.Time) error {
	results := s.db.Collection(collResults)

	del, err := results.DeleteOne(ctx, bson.M{"call_id": ph.CallID})
	if err != nil {
		return transient("drop placeholder", err)
	}
	if del.DeletedCount == 0 {
		return s.promotionGone(ctx, ph.CallID, providerID)
	}

	filter := bson.M{"call_id": providerID}
	set := bson.M{"phase": interview.PhaseProvider, "updated_at": now}
	if ph.OwnerID != "" {
		filter["owner_id"] = bson.M{"$in": bson.A{"", ph.OwnerID}}
		set["owner_id"] = ph.OwnerID
	}
	absorbed := append(append([]string{}, ph.PreviousCallIDs...), ph.CallID)
	res, err := results.UpdateOne(ctx, filter, bson.M{
		"$set":      set,
		"$addToSet": bson.M{"previous_call_ids": bson.M{"$each": absorbed}},
	})
	if err == nil && res.MatchedCount == 0 {
		err = fmt.Errorf("provider call %s changed owner during promotion: %w", providerID, interview.ErrInvariant)
	}
	if err != nil {
		s.restorePlaceholder(ctx, ph)
		if errors.Is(err, interview.ErrInvariant) {
			return err
		}
		return transient("merge promoted result", err)
	}

	if ph.InterviewID != nil {
		if _, err := results.UpdateOne(ctx,
			bson.M{"call_id": providerID, "interview_id": nil},
			bson.M{"$set": bson.M{"interview_id": *ph.InterviewID}},
		); err != nil {
			return transient("merge interview link", err)
		}
	}
	if len(ph.Session) > 0 && string(ph.Session) != "{}" {
		if _, err := results.UpdateOne(ctx,
			bson.M{"call_id": providerID, "session": bson.M{"$in": bson.A{nil, []byte("{}")}}},
			bson.M{"$set": bson.M{"session": []byte(ph.Session)}},
		); err != nil {
			return transient("merge session", err)
		}
	}
	return nil
}

// restorePlaceholder puts back a placeholder claimed by a merge that could
// not complete, so the promotion can be retried.
func (s *Mongo) restorePlaceholder(ctx context.Context, ph interview.Result) {
	_, _ = s.db.Collection(collResults).InsertOne(ctx, ph)
}

// promotionGone explains a missing placeholder: absorbed by another provider
// id is ErrInvariant, anything else ErrNotFound.
func (s *Mongo) promotionGone(ctx context.Context, placeholderID, providerID string) error {
	prior, err := s.FindPromotedResult(ctx, placeholderID)
	if err == nil && prior.CallID != providerID {
		return fmt.Errorf("placeholder %s already promoted to %s: %w", placeholderID, prior.CallID, interview.ErrInvariant)
	}
	return fmt.Errorf("placeholder %s: %w", placeholderID, interview.ErrNotFound)
}

var _ interview.Store = (*Mongo)(nil)
