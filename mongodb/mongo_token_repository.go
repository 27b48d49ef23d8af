package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// TokenStore hands out token collections of one database.
type TokenStore struct {
	db *mongo.Database
}

// NewTokenStore creates a TokenStore over db.
func NewTokenStore(db *mongo.Database) *TokenStore {
	return &TokenStore{db: db}
}

// Collection implements domain.CollectionProvider.
//
//nolint:ireturn
func (s *TokenStore) Collection(name string) domain.TokenCollection {
	return &TokenRepository{coll: s.db.Collection(name)}
}

// EnsureIndexes creates the indexes the token queries rely on.
// The unique index on token makes a colliding insert fail instead of
// shadowing the existing session.
func (s *TokenStore) EnsureIndexes(ctx context.Context, name string) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: fieldToken, Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: fieldExpiration, Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: fieldUser, Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		log.Warn().Err(err).Str("collection", name).Msg("Issue creating indexes for token collection")
		return fmt.Errorf("failed to create token indexes: %w", err)
	}
	log.Info().Str("collection", name).Msg("Indexes for token collection ensured.")
	return nil
}

// TokenRepository implements domain.TokenCollection on a MongoDB collection.
type TokenRepository struct {
	coll *mongo.Collection
}

// InsertOne implements domain.TokenCollection.
func (r *TokenRepository) InsertOne(ctx context.Context, token *domain.Token) error {
	_, err := r.coll.InsertOne(ctx, token)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateToken
		}
		log.Error().Err(err).Str("collection", r.coll.Name()).Msg("Error storing token in MongoDB")
		return err
	}
	return nil
}

// UpdateOne implements domain.TokenCollection.
func (r *TokenRepository) UpdateOne(ctx context.Context, filter domain.TokenFilter, update domain.TokenUpdate) (domain.UpdateResult, error) {
	result, err := r.coll.UpdateOne(ctx, filterToBSON(filter), updateToBSON(update))
	if err != nil {
		log.Error().Err(err).Str("collection", r.coll.Name()).Msg("Error updating token in MongoDB")
		return domain.UpdateResult{}, err
	}
	return domain.UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// FindOne implements domain.TokenCollection.
func (r *TokenRepository) FindOne(ctx context.Context, filter domain.TokenFilter) (*domain.Token, error) {
	var token domain.Token
	err := r.coll.FindOne(ctx, filterToBSON(filter)).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		log.Error().Err(err).Str("collection", r.coll.Name()).Msg("Error finding token in MongoDB")
		return nil, err
	}
	return &token, nil
}

// DeleteOne implements domain.TokenCollection.
func (r *TokenRepository) DeleteOne(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	result, err := r.coll.DeleteOne(ctx, filterToBSON(filter))
	if err != nil {
		log.Error().Err(err).Str("collection", r.coll.Name()).Msg("Error deleting token from MongoDB")
		return 0, err
	}
	return result.DeletedCount, nil
}

// DeleteMany implements domain.TokenCollection.
func (r *TokenRepository) DeleteMany(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, filterToBSON(filter))
	if err != nil {
		log.Error().Err(err).Str("collection", r.coll.Name()).Msg("Error deleting tokens from MongoDB")
		return 0, err
	}
	return result.DeletedCount, nil
}

func filterToBSON(f domain.TokenFilter) bson.M {
	m := bson.M{}
	if f.Token != "" {
		m[fieldToken] = f.Token
	}
	if f.User != "" {
		m[fieldUser] = f.User
	}

	expiration := bson.M{}
	if f.ExpirationAfter != 0 {
		expiration["$gt"] = f.ExpirationAfter
	}
	if f.ExpirationBefore != 0 {
		expiration["$lt"] = f.ExpirationBefore
	}
	if len(expiration) > 0 {
		m[fieldExpiration] = expiration
	}
	if f.FinalExpirationAfter != 0 {
		m[fieldFinalExpiration] = bson.M{"$gt": f.FinalExpirationAfter}
	}
	if f.Role != "" {
		m[fieldRoles] = bson.M{"$all": bson.A{f.Role}}
	}
	return m
}

// updateToBSON renders a touch. Capping against the stored finalExpiration
// needs the document value, so it is expressed as an aggregation pipeline.
func updateToBSON(u domain.TokenUpdate) any {
	if u.CapExpirationAtFinal && u.FinalExpiration == nil {
		return mongo.Pipeline{{{Key: "$set", Value: bson.D{
			{Key: fieldUpdated, Value: u.Updated},
			{Key: fieldExpiration, Value: bson.M{"$min": bson.A{u.Expiration, "$" + fieldFinalExpiration}}},
		}}}}
	}

	expiration := u.Expiration
	set := bson.M{fieldUpdated: u.Updated}
	if u.FinalExpiration != nil {
		if u.CapExpirationAtFinal {
			expiration = min(expiration, *u.FinalExpiration)
		}
		set[fieldFinalExpiration] = *u.FinalExpiration
	}
	set[fieldExpiration] = expiration
	return bson.M{"$set": set}
}

var (
	_ domain.CollectionProvider = (*TokenStore)(nil)
	_ domain.TokenCollection    = (*TokenRepository)(nil)
)
