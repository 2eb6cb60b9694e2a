package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNoteNotFound  = errors.New("note not found")
	ErrDuplicateNote = errors.New("duplicate note")
)

type Repo struct {
	coll *mongo.Collection
}

func NewRepo(db *mongo.Database) *Repo {
	return &Repo{coll: db.Collection("notes")}
}

// EnsureIndexes creates necessary indexes for the notes collection
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "client_ref", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"client_ref": bson.M{"$type": "string"}}),
		},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Insert creates a new note. It returns ErrDuplicateNote when the owner
// already has a note with the same client ref.
func (r *Repo) Insert(ctx context.Context, n *Note) error {
	n.ID = primitive.NewObjectID()
	// BSON dates carry milliseconds
	n.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err := r.coll.InsertOne(ctx, n)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateNote
	}
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// FindByID retrieves one of the owner's notes by its ID
func (r *Repo) FindByID(ctx context.Context, ownerID string, id primitive.ObjectID) (*Note, error) {
	return r.findOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
}

// FindByClientRef retrieves the note created with the given idempotency key
func (r *Repo) FindByClientRef(ctx context.Context, ownerID, ref string) (*Note, error) {
	return r.findOne(ctx, bson.M{"owner_id": ownerID, "client_ref": ref})
}

func (r *Repo) findOne(ctx context.Context, filter bson.M) (*Note, error) {
	var note Note
	err := r.coll.FindOne(ctx, filter).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find note: %w", err)
	}
	return &note, nil
}

// ListByOwner retrieves a window of the owner's notes, sorted by created_at desc
func (r *Repo) ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]*Note, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := r.coll.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer cursor.Close(ctx)

	notes := []*Note{}
	if err := cursor.All(ctx, &notes); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	return notes, nil
}

// CountByOwner returns the owner's total number of notes
func (r *Repo) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return count, nil
}
