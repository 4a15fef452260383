package kernelci

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockStore(mt *mtest.T) *MongoStore {
	return &MongoStore{client: mt.Client, db: mt.DB}
}

func TestMongoStoreDecoding(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	groupID := primitive.NewObjectID()
	buildID := primitive.NewObjectID()
	caseID := primitive.NewObjectID()

	mt.Run("group with null instance and extra fields", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "kernel-ci.test_group", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: groupID},
			{Key: "name", Value: "baseline"},
			{Key: "lab_name", Value: "lab-collabora"},
			{Key: "board", Value: "rk3399-gru-kevin"},
			{Key: "board_instance", Value: nil},
			{Key: "build_id", Value: buildID},
			{Key: "parent_id", Value: nil},
			{Key: "test_cases", Value: bson.A{caseID}},
			{Key: "created_on", Value: primitive.NewDateTimeFromTime(created)},
			{Key: "mach", Value: "rockchip"},
			{Key: "dtb", Value: "None"},
		}))

		group, err := mockStore(mt).Group(ctx, groupID)
		require.NoError(mt, err)
		require.NotNil(mt, group)
		assert.Equal(mt, "baseline", group.Name)
		assert.Empty(mt, group.BoardInstance)
		assert.Nil(mt, group.ParentID)
		assert.True(mt, group.TopLevel())
		assert.Equal(mt, buildID, group.BuildID)
		assert.Equal(mt, []primitive.ObjectID{caseID}, group.TestCases)
		assert.True(mt, created.Equal(group.CreatedOn))
		assert.Equal(mt, "rockchip", group.Extra["mach"])
		assert.Equal(mt, "None", group.Extra["dtb"])
		assert.NotContains(mt, group.Extra, "name")
	})

	mt.Run("build with integer build time", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "kernel-ci.build", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: buildID},
			{Key: "job", Value: "mainline"},
			{Key: "git_branch", Value: "master"},
			{Key: "build_time", Value: int32(312)},
			{Key: "kernel_image", Value: "Image"},
		}))

		build, err := mockStore(mt).Build(ctx, buildID)
		require.NoError(mt, err)
		require.NotNil(mt, build)
		assert.Equal(mt, "mainline", build.Job)
		require.NotNil(mt, build.BuildTime)
		assert.Equal(mt, 312.0, *build.BuildTime)
		assert.Equal(mt, "Image", build.Extra["kernel_image"])
	})

	mt.Run("missing documents", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "kernel-ci.test_case", mtest.FirstBatch),
			mtest.CreateCursorResponse(0, "kernel-ci.build", mtest.FirstBatch),
			mtest.CreateCursorResponse(0, "kernel-ci.test_group", mtest.FirstBatch),
		)
		store := mockStore(mt)

		tc, err := store.Case(ctx, caseID)
		require.NoError(mt, err)
		assert.Nil(mt, tc)

		build, err := store.Build(ctx, buildID)
		require.NoError(mt, err)
		assert.Nil(mt, build)

		group, err := store.Group(ctx, groupID)
		require.NoError(mt, err)
		assert.Nil(mt, group)
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11600,
			Name:    "InterruptedAtShutdown",
			Message: "interrupted at shutdown",
		}))

		_, err := mockStore(mt).Case(ctx, caseID)
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "failed to read test_case")
	})
}

func TestMongoStoreWalkGroups(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	first := primitive.NewObjectID()
	second := primitive.NewObjectID()

	mt.Run("visits every group", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "kernel-ci.test_group", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: first}, {Key: "name", Value: "baseline"}},
			bson.D{{Key: "_id", Value: second}, {Key: "name", Value: "kselftest"}},
		))

		var names []string
		err := mockStore(mt).WalkGroups(ctx, created, func(g *TestGroup) (bool, error) {
			names = append(names, g.Name)
			return true, nil
		})
		require.NoError(mt, err)
		assert.Equal(mt, []string{"baseline", "kselftest"}, names)
	})

	mt.Run("stops when asked", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "kernel-ci.test_group", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: first}, {Key: "name", Value: "baseline"}},
			bson.D{{Key: "_id", Value: second}, {Key: "name", Value: "kselftest"}},
		))

		visited := 0
		err := mockStore(mt).WalkGroups(ctx, created, func(g *TestGroup) (bool, error) {
			visited++
			return false, nil
		})
		require.NoError(mt, err)
		assert.Equal(mt, 1, visited)
	})

	mt.Run("query failure", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Name: "Unauthorized", Message: "not authorized"}))

		err := mockStore(mt).WalkGroups(ctx, created, func(*TestGroup) (bool, error) { return true, nil })
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "failed to query test_group")
	})
}
