package kernelci

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kcidb/pkg/errors"
)

// Collection names of the KernelCI backend database
const (
	GroupCollection = "test_group"
	CaseCollection  = "test_case"
	BuildCollection = "build"
)

// TestGroup is a test_group document. Fields not declared here are kept in Extra.
type TestGroup struct {
	ID            primitive.ObjectID   `bson:"_id"`
	Name          string               `bson:"name"`
	LabName       string               `bson:"lab_name"`
	Board         string               `bson:"board"`
	BoardInstance string               `bson:"board_instance"`
	BuildID       primitive.ObjectID   `bson:"build_id"`
	ParentID      *primitive.ObjectID  `bson:"parent_id"`
	SubGroups     []primitive.ObjectID `bson:"sub_groups"`
	TestCases     []primitive.ObjectID `bson:"test_cases"`
	CreatedOn     time.Time            `bson:"created_on"`
	Extra         bson.M               `bson:",inline"`
}

// TopLevel reports whether the group has no parent
func (g *TestGroup) TopLevel() bool {
	return g.ParentID == nil || g.ParentID.IsZero()
}

// TestCase is a test_case document
type TestCase struct {
	ID     primitive.ObjectID `bson:"_id"`
	Name   string             `bson:"name"`
	Status string             `bson:"status"`
}

// Build is a build document. Fields not declared here are kept in Extra.
type Build struct {
	ID              primitive.ObjectID `bson:"_id"`
	Job             string             `bson:"job"`
	GitBranch       string             `bson:"git_branch"`
	GitDescribe     string             `bson:"git_describe"`
	GitURL          string             `bson:"git_url"`
	GitCommit       string             `bson:"git_commit"`
	Arch            string             `bson:"arch"`
	DefconfigFull   string             `bson:"defconfig_full"`
	Compiler        string             `bson:"compiler"`
	CompilerVersion string             `bson:"compiler_version"`
	Status          string             `bson:"status"`
	BuildLog        string             `bson:"build_log"`
	BuildTime       *float64           `bson:"build_time"`
	Extra           bson.M             `bson:",inline"`
}

// Store reads the KernelCI documents the exporter needs. Lookups return
// nil without an error when the document does not exist.
type Store interface {
	// WalkGroups calls fn for every test group created since the given
	// time until fn returns false or an error
	WalkGroups(ctx context.Context, since time.Time, fn func(*TestGroup) (bool, error)) error
	Group(ctx context.Context, id primitive.ObjectID) (*TestGroup, error)
	Case(ctx context.Context, id primitive.ObjectID) (*TestCase, error)
	Build(ctx context.Context, id primitive.ObjectID) (*Build, error)
}

// MongoStore reads a KernelCI MongoDB database
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens and pings a MongoDB connection
func Connect(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.ConnectionError("Failed to connect to MongoDB", err).
			WithContext("uri", uri)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.ConnectionError("Failed to ping MongoDB", err).
			WithContext("uri", uri)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// Close disconnects from the server
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) WalkGroups(ctx context.Context, since time.Time, fn func(*TestGroup) (bool, error)) error {
	filter := bson.M{"created_on": bson.M{"$gte": since}}
	cursor, err := s.db.Collection(GroupCollection).Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", GroupCollection, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var group TestGroup
		if err := cursor.Decode(&group); err != nil {
			return fmt.Errorf("failed to decode %s document: %w", GroupCollection, err)
		}
		more, err := fn(&group)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return cursor.Err()
}

func (s *MongoStore) Group(ctx context.Context, id primitive.ObjectID) (*TestGroup, error) {
	var group TestGroup
	if err := findByID(ctx, s.db.Collection(GroupCollection), id, &group); err != nil {
		return nil, err
	}
	if group.ID.IsZero() {
		return nil, nil
	}
	return &group, nil
}

func (s *MongoStore) Case(ctx context.Context, id primitive.ObjectID) (*TestCase, error) {
	var tc TestCase
	if err := findByID(ctx, s.db.Collection(CaseCollection), id, &tc); err != nil {
		return nil, err
	}
	if tc.ID.IsZero() {
		return nil, nil
	}
	return &tc, nil
}

func (s *MongoStore) Build(ctx context.Context, id primitive.ObjectID) (*Build, error) {
	var build Build
	if err := findByID(ctx, s.db.Collection(BuildCollection), id, &build); err != nil {
		return nil, err
	}
	if build.ID.IsZero() {
		return nil, nil
	}
	return &build, nil
}

// findByID leaves out untouched when no document matches
func findByID(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, out interface{}) error {
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", coll.Name(), id.Hex(), err)
	}
	return nil
}
