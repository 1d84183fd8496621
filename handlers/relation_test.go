package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestVisibleToFiltersBlockedPairs(t *testing.T) {
	viewer := primitive.NewObjectID()
	friendly := primitive.NewObjectID()
	hostile := primitive.NewObjectID()

	// Follower/viewer listings of a third user can contain members the
	// caller has blocked (or who blocked the caller); those are dropped.
	out, err := visibleTo(viewer, []primitive.ObjectID{friendly, hostile, viewer}, func(id primitive.ObjectID) (bool, error) {
		return id == hostile, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{friendly, viewer}, out)
}

func TestVisibleToSkipsSelfCheck(t *testing.T) {
	viewer := primitive.NewObjectID()

	out, err := visibleTo(viewer, []primitive.ObjectID{viewer}, func(primitive.ObjectID) (bool, error) {
		return false, errors.New("must not check the viewer against themselves")
	})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{viewer}, out)
}

func TestVisibleToPropagatesErrors(t *testing.T) {
	viewer := primitive.NewObjectID()
	cause := errors.New("graph unavailable")

	_, err := visibleTo(viewer, []primitive.ObjectID{primitive.NewObjectID()}, func(primitive.ObjectID) (bool, error) {
		return false, cause
	})
	assert.ErrorIs(t, err, cause)
}

func TestVisibleToEmpty(t *testing.T) {
	out, err := visibleTo(primitive.NewObjectID(), nil, func(primitive.ObjectID) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}
