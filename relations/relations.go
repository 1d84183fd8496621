// Package relations stores the follow / friend-request / block graph as
// directed (subject, predicate, object) edges in a dedicated collection.
// A unique compound index makes membership tests and duplicate prevention
// single-document operations instead of array scans over user records.
package relations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ripple/models"
)

// Edge predicates.
const (
	Follows   = "follows"
	Requested = "requested"
	Friend    = "friend"
	Blocks    = "blocks"
)

var (
	ErrSelfRelation = errors.New("relations: cannot relate a user to themselves")
	ErrDuplicate    = errors.New("relations: edge already exists")
	ErrBlocked      = errors.New("relations: blocked")
	ErrNotFound     = errors.New("relations: edge not found")
)

// ValidPredicate reports whether p names a known edge predicate.
func ValidPredicate(p string) bool {
	switch p {
	case Follows, Requested, Friend, Blocks:
		return true
	}
	return false
}

type Service struct {
	coll *mongo.Collection
}

func NewService(db *mongo.Database) *Service {
	return &Service{coll: db.Collection("relations")}
}

// EnsureIndexes creates the unique (subject, predicate, object) index plus
// the reverse-lookup index used by follower/friend listings.
func (s *Service) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "subject", Value: 1},
				{Key: "predicate", Value: 1},
				{Key: "object", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "object", Value: 1},
				{Key: "predicate", Value: 1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create relation indexes: %w", err)
	}
	return nil
}

// Has reports whether the edge (subject, predicate, object) exists.
func (s *Service) Has(ctx context.Context, subject primitive.ObjectID, predicate string, object primitive.ObjectID) (bool, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{
		"subject":   subject,
		"predicate": predicate,
		"object":    object,
	})
	if err != nil {
		return false, fmt.Errorf("count edges: %w", err)
	}
	return count > 0, nil
}

// Blocked reports whether either user blocks the other.
func (s *Service) Blocked(ctx context.Context, a, b primitive.ObjectID) (bool, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{
		"predicate": Blocks,
		"$or": []bson.M{
			{"subject": a, "object": b},
			{"subject": b, "object": a},
		},
	})
	if err != nil {
		return false, fmt.Errorf("count block edges: %w", err)
	}
	return count > 0, nil
}

// add inserts one edge, refusing self-edges, duplicates and blocked pairs.
func (s *Service) add(ctx context.Context, subject primitive.ObjectID, predicate string, object primitive.ObjectID) (*models.Relation, error) {
	if subject == object {
		return nil, ErrSelfRelation
	}
	if predicate != Blocks {
		blocked, err := s.Blocked(ctx, subject, object)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, ErrBlocked
		}
	}

	edge := models.Relation{
		ID:        primitive.NewObjectID(),
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		CreatedAt: time.Now().Unix(),
	}
	if _, err := s.coll.InsertOne(ctx, edge); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert edge: %w", err)
	}
	return &edge, nil
}

// remove deletes one edge and reports ErrNotFound when it did not exist.
func (s *Service) remove(ctx context.Context, subject primitive.ObjectID, predicate string, object primitive.ObjectID) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{
		"subject":   subject,
		"predicate": predicate,
		"object":    object,
	})
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Follow creates the directed follow edge.
func (s *Service) Follow(ctx context.Context, follower, followee primitive.ObjectID) (*models.Relation, error) {
	return s.add(ctx, follower, Follows, followee)
}

func (s *Service) Unfollow(ctx context.Context, follower, followee primitive.ObjectID) error {
	return s.remove(ctx, follower, Follows, followee)
}

// SendRequest creates a pending friend request unless the pair is already
// friends or a request is already pending in either direction.
func (s *Service) SendRequest(ctx context.Context, from, to primitive.ObjectID) (*models.Relation, error) {
	for _, check := range []struct {
		subject, object primitive.ObjectID
		predicate       string
	}{
		{from, to, Friend},
		{from, to, Requested},
		{to, from, Requested},
	} {
		exists, err := s.Has(ctx, check.subject, check.predicate, check.object)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicate
		}
	}
	return s.add(ctx, from, Requested, to)
}

// AcceptRequest resolves a pending request into friendship. Friendship is
// symmetric so one edge is written per direction; there is no multi-document
// transaction, matching the rest of the graph's eventual-consistency model.
func (s *Service) AcceptRequest(ctx context.Context, requestID, receiver primitive.ObjectID) (*models.Relation, error) {
	var req models.Relation
	err := s.coll.FindOne(ctx, bson.M{
		"_id":       requestID,
		"predicate": Requested,
		"object":    receiver,
	}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}

	if err := s.remove(ctx, req.Subject, Requested, req.Object); err != nil && err != ErrNotFound {
		return nil, err
	}
	if _, err := s.add(ctx, req.Subject, Friend, req.Object); err != nil && err != ErrDuplicate {
		return nil, err
	}
	if _, err := s.add(ctx, req.Object, Friend, req.Subject); err != nil && err != ErrDuplicate {
		return nil, err
	}
	return &req, nil
}

// RemoveRequest deletes a pending request the user either sent or received.
func (s *Service) RemoveRequest(ctx context.Context, requestID, userID primitive.ObjectID) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{
		"_id":       requestID,
		"predicate": Requested,
		"$or": []bson.M{
			{"subject": userID},
			{"object": userID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Unfriend removes both friendship edges.
func (s *Service) Unfriend(ctx context.Context, a, b primitive.ObjectID) error {
	err := s.remove(ctx, a, Friend, b)
	if err != nil && err != ErrNotFound {
		return err
	}
	first := err
	err = s.remove(ctx, b, Friend, a)
	if err != nil && err != ErrNotFound {
		return err
	}
	if first == ErrNotFound && err == ErrNotFound {
		return ErrNotFound
	}
	return nil
}

// Block inserts the block edge and severs every other edge between the pair
// in both directions.
func (s *Service) Block(ctx context.Context, blocker, blocked primitive.ObjectID) (*models.Relation, error) {
	edge, err := s.add(ctx, blocker, Blocks, blocked)
	if err != nil {
		return nil, err
	}

	_, err = s.coll.DeleteMany(ctx, bson.M{
		"predicate": bson.M{"$in": []string{Follows, Requested, Friend}},
		"$or": []bson.M{
			{"subject": blocker, "object": blocked},
			{"subject": blocked, "object": blocker},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sever edges on block: %w", err)
	}
	return edge, nil
}

func (s *Service) Unblock(ctx context.Context, blocker, blocked primitive.ObjectID) error {
	return s.remove(ctx, blocker, Blocks, blocked)
}

// Objects lists the object ids of the user's outgoing edges for a predicate
// (e.g. who the user follows).
func (s *Service) Objects(ctx context.Context, subject primitive.ObjectID, predicate string) ([]primitive.ObjectID, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"subject": subject, "predicate": predicate})
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer cursor.Close(ctx)

	var edges []models.Relation
	if err := cursor.All(ctx, &edges); err != nil {
		return nil, fmt.Errorf("decode edges: %w", err)
	}

	out := make([]primitive.ObjectID, len(edges))
	for i, e := range edges {
		out[i] = e.Object
	}
	return out, nil
}

// Subjects lists the subject ids of the user's incoming edges for a
// predicate (e.g. the user's followers).
func (s *Service) Subjects(ctx context.Context, object primitive.ObjectID, predicate string) ([]primitive.ObjectID, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"object": object, "predicate": predicate})
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer cursor.Close(ctx)

	var edges []models.Relation
	if err := cursor.All(ctx, &edges); err != nil {
		return nil, fmt.Errorf("decode edges: %w", err)
	}

	out := make([]primitive.ObjectID, len(edges))
	for i, e := range edges {
		out[i] = e.Subject
	}
	return out, nil
}

// Requests returns the user's pending friend requests, incoming and outgoing.
func (s *Service) Requests(ctx context.Context, userID primitive.ObjectID) (incoming, outgoing []models.Relation, err error) {
	cursor, err := s.coll.Find(ctx, bson.M{
		"predicate": Requested,
		"$or": []bson.M{
			{"subject": userID},
			{"object": userID},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list requests: %w", err)
	}
	defer cursor.Close(ctx)

	var edges []models.Relation
	if err := cursor.All(ctx, &edges); err != nil {
		return nil, nil, fmt.Errorf("decode requests: %w", err)
	}

	for _, e := range edges {
		if e.Object == userID {
			incoming = append(incoming, e)
		} else {
			outgoing = append(outgoing, e)
		}
	}
	return incoming, outgoing, nil
}
