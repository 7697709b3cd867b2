package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/socialgraph/core"
)

// RelationshipStore is a social.RelationshipStore over Mongo. It records
// a relationship as default-group rows in the relationshipGroupMembers
// collection and reads blocks from the blocks collection, rather than
// maintaining a separate denormalised "friendship" collection.
type RelationshipStore struct {
	requests         *mongo.Collection
	groupMemberships *mongo.Collection
	blocks           *mongo.Collection
}

func (a *Adapter) NewRelationshipStore() *RelationshipStore {
	return &RelationshipStore{
		requests:         a.database.Collection("friendRequests"),
		groupMemberships: a.database.Collection("relationshipGroupMembers"),
		blocks:           a.database.Collection("blocks"),
	}
}

// FriendTwoUsers places each user into the other's default
// relationship group, upserting so the accept path is idempotent under
// retry. It runs inside the caller's transaction session.
func (r *RelationshipStore) FriendTwoUsers(ctx context.Context, requesterID, recipientID social.UserID, sess social.Session) (social.GroupIndex, social.GroupIndex, error) {
	sc := ctxFor(ctx, sess)
	opts := options.Update().SetUpsert(true)

	ownerMember := bson.M{"ownerId": requesterID, "groupIndex": social.DefaultIndex, "relatedUserId": recipientID}
	if _, err := r.groupMemberships.UpdateOne(sc, ownerMember, bson.M{"$setOnInsert": ownerMember}, opts); err != nil {
		return 0, 0, wrapMongoErr(err)
	}

	peerMember := bson.M{"ownerId": recipientID, "groupIndex": social.DefaultIndex, "relatedUserId": requesterID}
	if _, err := r.groupMemberships.UpdateOne(sc, peerMember, bson.M{"$setOnInsert": peerMember}, opts); err != nil {
		return 0, 0, wrapMongoErr(err)
	}

	return social.DefaultIndex, social.DefaultIndex, nil
}

// HasBlocked reports whether blockerID has blocked blockedID.
func (r *RelationshipStore) HasBlocked(ctx context.Context, blockerID, blockedID social.UserID) (bool, error) {
	filter := bson.M{"blockerId": blockerID, "blockedId": blockedID}
	err := r.blocks.FindOne(ctx, filter).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return true, nil
}
