package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BradenHooton/magiclink/internal/models"
)

// tokenDocument is the MongoDB representation of a TokenRecord
type tokenDocument struct {
	ID         string         `bson:"_id"`
	Email      string         `bson:"email"`
	Token      string         `bson:"token"`
	Code       string         `bson:"code"`
	ExpiresAt  time.Time      `bson:"expires_at"`
	IsActive   bool           `bson:"is_active"`
	Context    map[string]any `bson:"context"`
	UserAgent  *string        `bson:"user_agent,omitempty"`
	IPAddress  *string        `bson:"ip_address,omitempty"`
	LastUsedAt *time.Time     `bson:"last_used_at,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
}

func (d *tokenDocument) record() *models.TokenRecord {
	ctx := d.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	return &models.TokenRecord{
		ID:         d.ID,
		Email:      d.Email,
		Token:      d.Token,
		Code:       d.Code,
		ExpiresAt:  d.ExpiresAt,
		IsActive:   d.IsActive,
		Context:    ctx,
		UserAgent:  d.UserAgent,
		IPAddress:  d.IPAddress,
		LastUsedAt: d.LastUsedAt,
		CreatedAt:  d.CreatedAt,
	}
}

// MongoTokenRepository stores magic-link credentials in a MongoDB collection.
// Conditional updates filter on is_active so only one redeemer can match.
type MongoTokenRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoTokenRepository creates a repository over the given collection
func NewMongoTokenRepository(coll *mongo.Collection) *MongoTokenRepository {
	return &MongoTokenRepository{coll: coll, now: time.Now}
}

// EnsureIndexes creates the unique token index and the partial unique
// (email, code) index over active records.
func (r *MongoTokenRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetName("token_unique").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}, {Key: "code", Value: 1}},
			Options: options.Index().
				SetName("active_email_code_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("email_active_created"),
		},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create token indexes: %w", err)
	}
	return nil
}

func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrConflict
	}
	return err
}

// InvalidateActiveByEmail deactivates every active credential of an email
func (r *MongoTokenRepository) InvalidateActiveByEmail(ctx context.Context, email string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"email": email, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate active tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

// TokenExists reports whether any document, active or not, holds the token value
func (r *MongoTokenRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"token": token}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check token existence: %w", err)
	}
	return n > 0, nil
}

// ActiveCodeExists reports whether an active document of the email holds the code
func (r *MongoTokenRepository) ActiveCodeExists(ctx context.Context, email, code string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx,
		bson.M{"email": email, "code": code, "is_active": true},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}
	return n > 0, nil
}

// Create inserts a new active document. Duplicate key errors surface as
// models.ErrConflict.
func (r *MongoTokenRepository) Create(ctx context.Context, record *models.TokenRecord) (*models.TokenRecord, error) {
	tokenContext := record.Context
	if tokenContext == nil {
		tokenContext = map[string]any{}
	}

	// MongoDB stores millisecond precision
	doc := tokenDocument{
		ID:        uuid.New().String(),
		Email:     record.Email,
		Token:     record.Token,
		Code:      record.Code,
		ExpiresAt: record.ExpiresAt.UTC().Truncate(time.Millisecond),
		IsActive:  true,
		Context:   tokenContext,
		UserAgent: record.UserAgent,
		IPAddress: record.IPAddress,
		CreatedAt: r.now().UTC().Truncate(time.Millisecond),
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create magic token: %w", mapMongoError(err))
	}

	return doc.record(), nil
}

// findOne decodes the first match, mapping no documents to models.ErrNotFound
func (r *MongoTokenRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.TokenRecord, error) {
	var doc tokenDocument
	if err := r.coll.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.record(), nil
}

// GetActiveByToken retrieves the active document holding the token value
func (r *MongoTokenRepository) GetActiveByToken(ctx context.Context, token string) (*models.TokenRecord, error) {
	return r.findOne(ctx, bson.M{"token": token, "is_active": true})
}

// GetLatestActiveByEmailCode retrieves the newest active document matching email and code
func (r *MongoTokenRepository) GetLatestActiveByEmailCode(ctx context.Context, email, code string) (*models.TokenRecord, error) {
	return r.findOne(ctx,
		bson.M{"email": email, "code": code, "is_active": true},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
}

// Deactivate flips an active document to inactive, reporting whether it applied
func (r *MongoTokenRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate magic token: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// MarkAsUsed consumes an active document, reporting whether this call won
func (r *MongoTokenRepository) MarkAsUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "last_used_at": usedAt.UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark magic token as used: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// CountActive returns the number of active documents
func (r *MongoTokenRepository) CountActive(ctx context.Context) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"is_active": true})
	if err != nil {
		return 0, fmt.Errorf("failed to count active tokens: %w", err)
	}
	return n, nil
}
