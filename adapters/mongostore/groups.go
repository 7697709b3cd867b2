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

// RelationshipGroupStore is a social.RelationshipGroupStore over Mongo.
type RelationshipGroupStore struct {
	collection *mongo.Collection
}

func (a *Adapter) NewRelationshipGroupStore() *RelationshipGroupStore {
	return &RelationshipGroupStore{collection: a.database.Collection("relationshipGroups")}
}

func groupFilter(owner social.UserID, idx social.GroupIndex) bson.M {
	return bson.M{"ownerId": owner, "index": idx}
}

func (s *RelationshipGroupStore) Insert(ctx context.Context, g social.RelationshipGroup, sess social.Session) error {
	_, err := s.collection.InsertOne(ctxFor(ctx, sess), g)
	return wrapMongoErr(err)
}

func (s *RelationshipGroupStore) FindByOwnerAndIndex(ctx context.Context, owner social.UserID, idx social.GroupIndex) (social.RelationshipGroup, bool, error) {
	var g social.RelationshipGroup
	err := s.collection.FindOne(ctx, groupFilter(owner, idx)).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return social.RelationshipGroup{}, false, nil
	}
	if err != nil {
		return social.RelationshipGroup{}, false, fmt.Errorf("find relationship group: %w", err)
	}
	return g, true, nil
}

func (s *RelationshipGroupStore) FindByOwner(ctx context.Context, owner social.UserID) ([]social.RelationshipGroup, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"ownerId": owner})
	if err != nil {
		return nil, fmt.Errorf("find relationship groups: %w", err)
	}
	defer cursor.Close(ctx)
	var out []social.RelationshipGroup
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode relationship groups: %w", err)
	}
	return out, nil
}

func (s *RelationshipGroupStore) CountByOwner(ctx context.Context, owner social.UserID) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"ownerId": owner})
	if err != nil {
		return 0, fmt.Errorf("count relationship groups: %w", err)
	}
	return n, nil
}

func (s *RelationshipGroupStore) UpdateName(ctx context.Context, owner social.UserID, idx social.GroupIndex, name string) (social.UpdateResult, error) {
	result, err := s.collection.UpdateOne(ctx, groupFilter(owner, idx), bson.M{"$set": bson.M{"name": name}})
	if err != nil {
		return social.UpdateResult{}, fmt.Errorf("rename relationship group: %w", err)
	}
	return social.UpdateResult{Matched: result.MatchedCount, Modified: result.ModifiedCount}, nil
}

func (s *RelationshipGroupStore) BatchUpdate(ctx context.Context, keys []social.GroupKey, name *string, creationDate *int64) (social.UpdateResult, error) {
	var total social.UpdateResult
	for _, k := range keys {
		set := bson.M{}
		if name != nil {
			set["name"] = *name
		}
		if creationDate != nil {
			set["creationDate"] = time.Unix(0, *creationDate)
		}
		result, err := s.collection.UpdateOne(ctx, groupFilter(k.OwnerID, k.Index), bson.M{"$set": set})
		if err != nil {
			return total, fmt.Errorf("batch update relationship groups: %w", err)
		}
		total.Matched += result.MatchedCount
		total.Modified += result.ModifiedCount
	}
	return total, nil
}

func (s *RelationshipGroupStore) Delete(ctx context.Context, owner social.UserID, idx social.GroupIndex) error {
	_, err := s.collection.DeleteOne(ctx, groupFilter(owner, idx))
	if err != nil {
		return fmt.Errorf("delete relationship group: %w", err)
	}
	return nil
}

// RelationshipGroupMemberStore is a social.RelationshipGroupMemberStore
// over Mongo.
type RelationshipGroupMemberStore struct {
	collection *mongo.Collection
}

func (a *Adapter) NewRelationshipGroupMemberStore() *RelationshipGroupMemberStore {
	return &RelationshipGroupMemberStore{collection: a.database.Collection("relationshipGroupMembers")}
}

func memberFilter(owner social.UserID, idx social.GroupIndex, related social.UserID) bson.M {
	return bson.M{"ownerId": owner, "groupIndex": idx, "relatedUserId": related}
}

func (s *RelationshipGroupMemberStore) Upsert(ctx context.Context, m social.RelationshipGroupMember, sess social.Session) (social.AtomicResult[social.RelationshipGroupMember], error) {
	filter := memberFilter(m.OwnerID, m.GroupIndex, m.RelatedUserID)
	update := bson.M{"$setOnInsert": m}
	opts := options.Update().SetUpsert(true)
	result, err := s.collection.UpdateOne(ctxFor(ctx, sess), filter, update, opts)
	if err != nil {
		return social.AtomicResult[social.RelationshipGroupMember]{}, wrapMongoErr(err)
	}
	return *social.NewAtomicResult(m, result.UpsertedCount > 0), nil
}

func (s *RelationshipGroupMemberStore) DeleteByKey(ctx context.Context, key social.MemberKey, sess social.Session) error {
	_, err := s.collection.DeleteOne(ctxFor(ctx, sess), memberFilter(key.OwnerID, key.GroupIndex, key.RelatedUserID))
	if err != nil {
		return fmt.Errorf("delete group member: %w", err)
	}
	return nil
}

func (s *RelationshipGroupMemberStore) DeleteByOwnerAndGroup(ctx context.Context, owner social.UserID, idx social.GroupIndex) (social.DeleteResult, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"ownerId": owner, "groupIndex": idx})
	if err != nil {
		return social.DeleteResult{}, fmt.Errorf("delete group members: %w", err)
	}
	return social.DeleteResult{Matched: result.DeletedCount, Deleted: result.DeletedCount}, nil
}

func (s *RelationshipGroupMemberStore) DeleteByOwnerAndRelatedUsers(ctx context.Context, owner social.UserID, related []social.UserID, sess social.Session) (social.DeleteResult, error) {
	filter := bson.M{"ownerId": owner, "relatedUserId": bson.M{"$in": related}}
	result, err := s.collection.DeleteMany(ctxFor(ctx, sess), filter)
	if err != nil {
		return social.DeleteResult{}, fmt.Errorf("delete related users from groups: %w", err)
	}
	return social.DeleteResult{Matched: result.DeletedCount, Deleted: result.DeletedCount}, nil
}

func (s *RelationshipGroupMemberStore) FindMembers(ctx context.Context, owner social.UserID, idx social.GroupIndex) ([]social.RelationshipGroupMember, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"ownerId": owner, "groupIndex": idx})
	if err != nil {
		return nil, fmt.Errorf("find group members: %w", err)
	}
	defer cursor.Close(ctx)
	var out []social.RelationshipGroupMember
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode group members: %w", err)
	}
	return out, nil
}

func (s *RelationshipGroupMemberStore) FindGroupIndexes(ctx context.Context, owner, related social.UserID) ([]social.GroupIndex, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"ownerId": owner, "relatedUserId": related})
	if err != nil {
		return nil, fmt.Errorf("find group indexes: %w", err)
	}
	defer cursor.Close(ctx)
	var rows []social.RelationshipGroupMember
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode group indexes: %w", err)
	}
	out := make([]social.GroupIndex, len(rows))
	for i, r := range rows {
		out[i] = r.GroupIndex
	}
	return out, nil
}

// InsertAllOfSameType bulk-inserts, tolerating duplicate-key partial
// success (ordered:false lets Mongo skip past individual collisions).
func (s *RelationshipGroupMemberStore) InsertAllOfSameType(ctx context.Context, members []social.RelationshipGroupMember) error {
	if len(members) == 0 {
		return nil
	}
	docs := make([]any, len(members))
	for i, m := range members {
		docs[i] = m
	}
	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		if bulkWriteExceptionOnlyDuplicates(err) {
			return nil
		}
		return fmt.Errorf("bulk insert group members: %w", err)
	}
	return nil
}

// bulkWriteExceptionOnlyDuplicates reports whether every failure in an
// unordered bulk write was a duplicate key (11000); InsertAllOfSameType
// tolerates those per §4.3 and only surfaces anything else.
func bulkWriteExceptionOnlyDuplicates(err error) bool {
	bwe, ok := err.(mongo.BulkWriteException)
	if !ok {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return true
}
