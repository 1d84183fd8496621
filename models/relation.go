package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Relation is one directed edge in the relationship graph, keyed
// (subject, predicate, object). A unique compound index on those three
// fields keeps membership tests a single document lookup instead of an
// array scan over the user record.
type Relation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Subject   primitive.ObjectID `bson:"subject" json:"subject"`
	Predicate string             `bson:"predicate" json:"predicate"`
	Object    primitive.ObjectID `bson:"object" json:"object"`
	CreatedAt int64              `bson:"createdAt" json:"createdAt"`
}
