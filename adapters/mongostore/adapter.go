// Package mongostore is the primary production adapter over MongoDB,
// grounded on friendit's MongoAdapter. It realises the one transactional
// operation this module needs — the friend-request ACCEPT path — with
// mongo.Client.StartSession / WithTransaction.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/socialgraph/core"
)

// Adapter owns the MongoDB client and database handle every store in
// this package shares.
type Adapter struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewAdapter(ctx context.Context, connectionString, databaseName string) (*Adapter, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Adapter{client: client, database: client.Database(databaseName)}, nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

type mongoSession struct {
	sess mongo.Session
}

func (mongoSession) session() {}

func sessionContext(sess social.Session) mongo.SessionContext {
	if ms, ok := sess.(mongoSession); ok {
		return mongo.NewSessionContext(context.Background(), ms.sess)
	}
	return nil
}

func wrapMongoErr(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return &social.DuplicateKeyError{Err: err}
	}
	if labeled, ok := err.(interface{ HasErrorLabel(string) bool }); ok && labeled.HasErrorLabel("TransientTransactionError") {
		return &social.TransientTransactionError{Err: err}
	}
	return err
}

// This adapter persists social.FriendRequest directly, using the bson
// tags already declared on the domain struct, rather than maintaining a
// parallel DTO.

// FriendRequestStore is a social.FriendRequestStore over a Mongo
// collection.
type FriendRequestStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func (a *Adapter) NewFriendRequestStore() *FriendRequestStore {
	return &FriendRequestStore{client: a.client, collection: a.database.Collection("friendRequests")}
}

func ctxFor(ctx context.Context, sess social.Session) context.Context {
	if sc := sessionContext(sess); sc != nil {
		return sc
	}
	return ctx
}

func (s *FriendRequestStore) Insert(ctx context.Context, req social.FriendRequest, sess social.Session) error {
	_, err := s.collection.InsertOne(ctxFor(ctx, sess), req)
	return wrapMongoErr(err)
}

func (s *FriendRequestStore) FindByID(ctx context.Context, id social.RequestID, proj social.RequestProjection) (social.FriendRequest, bool, error) {
	var req social.FriendRequest
	opts := options.FindOne()
	switch proj {
	case social.ProjectStatusOnly:
		opts.SetProjection(bson.M{"requesterId": 1, "recipientId": 1, "status": 1})
	case social.ProjectStatusAndCreation:
		opts.SetProjection(bson.M{"requesterId": 1, "recipientId": 1, "status": 1, "creationDate": 1})
	case social.ProjectRecipientOnly:
		opts.SetProjection(bson.M{"recipientId": 1})
	}
	err := s.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return social.FriendRequest{}, false, nil
	}
	if err != nil {
		return social.FriendRequest{}, false, fmt.Errorf("find friend request: %w", err)
	}
	return req, true, nil
}

func (s *FriendRequestStore) FindBySender(ctx context.Context, requesterID social.UserID) ([]social.FriendRequest, error) {
	return s.findMany(ctx, bson.M{"requesterId": requesterID})
}

func (s *FriendRequestStore) FindByRecipient(ctx context.Context, recipientID social.UserID) ([]social.FriendRequest, error) {
	return s.findMany(ctx, bson.M{"recipientId": recipientID})
}

func (s *FriendRequestStore) FindPending(ctx context.Context, requesterID, recipientID social.UserID) (social.FriendRequest, bool, error) {
	var req social.FriendRequest
	opts := options.FindOne().SetSort(bson.M{"creationDate": -1})
	err := s.collection.FindOne(ctx, bson.M{"requesterId": requesterID, "recipientId": recipientID}, opts).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return social.FriendRequest{}, false, nil
	}
	if err != nil {
		return social.FriendRequest{}, false, fmt.Errorf("find pending friend request: %w", err)
	}
	return req, true, nil
}

func (s *FriendRequestStore) findMany(ctx context.Context, filter bson.M) ([]social.FriendRequest, error) {
	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find friend requests: %w", err)
	}
	defer cursor.Close(ctx)
	var out []social.FriendRequest
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode friend requests: %w", err)
	}
	return out, nil
}

func (s *FriendRequestStore) UpdateStatusIfPending(ctx context.Context, id social.RequestID, newStatus social.FriendRequestStatus, reason *string, responseDateUnixNanos int64, sess social.Session) (social.UpdateResult, error) {
	filter := bson.M{"_id": id, "status": social.StatusPending}
	set := bson.M{"status": newStatus, "responseDate": time.Unix(0, responseDateUnixNanos)}
	if reason != nil {
		set["reason"] = *reason
	}
	result, err := s.collection.UpdateOne(ctxFor(ctx, sess), filter, bson.M{"$set": set})
	if err != nil {
		return social.UpdateResult{}, wrapMongoErr(err)
	}
	// MatchedCount under the filter above conflates "not found" and "not
	// pending" — do a cheap follow-up existence check only when needed
	// by the caller; the service layer treats modified==0 uniformly.
	if result.MatchedCount == 0 {
		if _, found, _ := s.FindByID(ctx, id, social.ProjectStatusOnly); found {
			return social.UpdateResult{Matched: 1, Modified: 0}, nil
		}
		return social.UpdateResult{Matched: 0, Modified: 0}, nil
	}
	return social.UpdateResult{Matched: result.MatchedCount, Modified: result.ModifiedCount}, nil
}

func (s *FriendRequestStore) BatchUpdate(ctx context.Context, ids []social.RequestID, fields social.FriendRequestFieldSet) (social.UpdateResult, error) {
	set := bson.M{}
	if fields.Status != nil {
		set["status"] = *fields.Status
	}
	if fields.Content != nil {
		set["content"] = *fields.Content
	}
	if fields.Reason != nil {
		set["reason"] = *fields.Reason
	}
	if fields.ResponseDate != nil {
		set["responseDate"] = time.Unix(0, *fields.ResponseDate)
	}
	result, err := s.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": set})
	if err != nil {
		return social.UpdateResult{}, fmt.Errorf("batch update friend requests: %w", err)
	}
	return social.UpdateResult{Matched: result.MatchedCount, Modified: result.ModifiedCount}, nil
}

func (s *FriendRequestStore) DeleteByIDs(ctx context.Context, ids []social.RequestID) (social.DeleteResult, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return social.DeleteResult{}, fmt.Errorf("delete friend requests: %w", err)
	}
	return social.DeleteResult{Matched: result.DeletedCount, Deleted: result.DeletedCount}, nil
}

func (s *FriendRequestStore) DeleteExpired(ctx context.Context, olderThanCreationUnixNanos int64) (social.DeleteResult, error) {
	filter := bson.M{"status": social.StatusPending, "creationDate": bson.M{"$lt": time.Unix(0, olderThanCreationUnixNanos)}}
	result, err := s.collection.DeleteMany(ctx, filter)
	if err != nil {
		return social.DeleteResult{}, fmt.Errorf("delete expired friend requests: %w", err)
	}
	return social.DeleteResult{Matched: result.DeletedCount, Deleted: result.DeletedCount}, nil
}

// InTransaction opens a Mongo session and runs fn inside WithTransaction,
// which itself retries on TransientTransactionError / UnknownTransactionCommitResult
// per the driver's own convention; the outer retrypolicy.Policy in
// friendrequest.go adds the bounded-attempts ceiling the spec requires on
// top of that.
func (s *FriendRequestStore) InTransaction(ctx context.Context, fn func(ctx context.Context, sess social.Session) (any, error)) (any, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	return session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return fn(sc, mongoSession{sess: session})
	})
}
