package repositories

import (
	"context"
	"time"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StoryRepository is the sole writer of persisted story state.
type StoryRepository interface {
	// GetStoriesByUserIDs returns the raw story documents for the given
	// owners. Expiry and privacy filtering happen at the read boundary above.
	GetStoriesByUserIDs(ctx context.Context, userIDs []string) ([]models.Story, error)
	// GetStoryByUserID returns a user's own story with every non-deleted
	// post, expired ones included. Missing story -> not_found.
	GetStoryByUserID(ctx context.Context, userID string) (*models.Story, error)
	GetStoryByID(ctx context.Context, storyID string) (*models.Story, error)
	// AppendPost appends a fully-formed post to the owner's story, creating
	// the document if absent. Only the upload pipeline calls this, and only
	// after the media transfer fully succeeded.
	AppendPost(ctx context.Context, userID string, post models.StoryPost) error
	// DeleteStoryPost removes one post permanently. Deleting an absent post
	// -> not_found.
	DeleteStoryPost(ctx context.Context, storyID, postID string) error
	// DeleteStory removes the whole story document permanently.
	DeleteStory(ctx context.Context, storyID string) error
	// UpsertView writes the viewer's ViewData in place, last write wins.
	// Exactly one entry per (post, viewer) at any time.
	UpsertView(ctx context.Context, storyID, postID, viewerID string, view models.ViewData) error
	// MarkExpiredPosts flips status active -> expired for posts past their
	// expiry. Non-destructive; used by the optional sweep job.
	MarkExpiredPosts(ctx context.Context, now time.Time) (int64, error)
}

// MongoStoryRepository implements StoryRepository over a stories collection,
// one document per user.
type MongoStoryRepository struct {
	collection *mongo.Collection
}

// NewMongoStoryRepository creates a new MongoStoryRepository.
func NewMongoStoryRepository(db *mongo.Database) *MongoStoryRepository {
	return &MongoStoryRepository{collection: db.Collection("stories")}
}

func mapMongoError(err error, message string) error {
	if err == nil {
		return nil
	}
	if err == mongo.ErrNoDocuments {
		return apperrors.Wrap(err, apperrors.CodeNotFound, message)
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return apperrors.Wrap(err, apperrors.CodeNetwork, message)
	}
	return apperrors.Wrap(err, apperrors.CodeStorage, message)
}

func (r *MongoStoryRepository) GetStoriesByUserIDs(ctx context.Context, userIDs []string) ([]models.Story, error) {
	if len(userIDs) == 0 {
		return []models.Story{}, nil
	}

	filter := bson.M{"user_id": bson.M{"$in": userIDs}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapMongoError(err, "query stories")
	}
	defer cursor.Close(ctx)

	var stories []models.Story
	if err = cursor.All(ctx, &stories); err != nil {
		return nil, mapMongoError(err, "decode stories")
	}
	return stories, nil
}

func (r *MongoStoryRepository) GetStoryByUserID(ctx context.Context, userID string) (*models.Story, error) {
	var story models.Story
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&story)
	if err != nil {
		return nil, mapMongoError(err, "load story for user")
	}
	return &story, nil
}

func (r *MongoStoryRepository) GetStoryByID(ctx context.Context, storyID string) (*models.Story, error) {
	objID, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "invalid story id")
	}
	var story models.Story
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&story)
	if err != nil {
		return nil, mapMongoError(err, "load story")
	}
	return &story, nil
}

func (r *MongoStoryRepository) AppendPost(ctx context.Context, userID string, post models.StoryPost) error {
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$push": bson.M{"posts": post},
		"$set":  bson.M{"updated_at": post.Timestamp},
	}
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return mapMongoError(err, "append post")
}

func (r *MongoStoryRepository) DeleteStoryPost(ctx context.Context, storyID, postID string) error {
	objID, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return apperrors.New(apperrors.CodeNotFound, "invalid story id")
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objID, "posts.id": postID},
		bson.M{"$pull": bson.M{"posts": bson.M{"id": postID}}},
	)
	if err != nil {
		return mapMongoError(err, "delete post")
	}
	if res.MatchedCount == 0 {
		return apperrors.New(apperrors.CodeNotFound, "post not found")
	}
	return nil
}

func (r *MongoStoryRepository) DeleteStory(ctx context.Context, storyID string) error {
	objID, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return apperrors.New(apperrors.CodeNotFound, "invalid story id")
	}
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return mapMongoError(err, "delete story")
	}
	if res.DeletedCount == 0 {
		return apperrors.New(apperrors.CodeNotFound, "story not found")
	}
	return nil
}

func (r *MongoStoryRepository) UpsertView(ctx context.Context, storyID, postID, viewerID string, view models.ViewData) error {
	objID, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return apperrors.New(apperrors.CodeNotFound, "invalid story id")
	}

	// Positional $ targets the matched post; the map key makes the write an
	// O(1) idempotent upsert, concurrent writers converge last-write-wins.
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objID, "posts.id": postID},
		bson.M{"$set": bson.M{"posts.$.views." + viewerID: view}},
	)
	if err != nil {
		return mapMongoError(err, "upsert view")
	}
	if res.MatchedCount == 0 {
		return apperrors.New(apperrors.CodeNotFound, "post not found")
	}
	return nil
}

func (r *MongoStoryRepository) MarkExpiredPosts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"posts": bson.M{"$elemMatch": bson.M{"status": models.PostStatusActive, "expires_at": bson.M{"$lte": now}}}},
		bson.M{"$set": bson.M{"posts.$[p].status": models.PostStatusExpired}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"p.status": models.PostStatusActive, "p.expires_at": bson.M{"$lte": now}}},
		}),
	)
	if err != nil {
		return 0, mapMongoError(err, "mark expired posts")
	}
	return res.ModifiedCount, nil
}
