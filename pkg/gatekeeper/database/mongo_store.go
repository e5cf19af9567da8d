package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const userCollection = "users"

// MongoStore is a UserStore backed by a MongoDB collection.
type MongoStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// userDocument is the stored shape of a user. IDs are kept as canonical
// UUID strings so documents stay readable from the mongo shell.
type userDocument struct {
	ID             string    `bson:"_id"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
	Email          string    `bson:"email"`
	Username       *string   `bson:"username,omitempty"`
	HashedPassword string    `bson:"hashed_password"`
	FullName       string    `bson:"full_name"`
	IsActive       bool      `bson:"is_active"`
	IsSuperuser    bool      `bson:"is_superuser"`
	Provider       *string   `bson:"provider,omitempty"`
	ProviderUserID *string   `bson:"provider_user_id,omitempty"`
	Picture        string    `bson:"picture,omitempty"`
}

// NewMongoStore creates the store and ensures the unique indexes exist.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	collection := db.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"username": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "provider_user_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"provider_user_id": bson.M{"$type": "string"}}),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}

	return &MongoStore{collection: collection, now: time.Now}, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *MongoStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *MongoStore) GetByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"provider": provider, "provider_user_id": providerUserID})
}

func (s *MongoStore) List(ctx context.Context) ([]models.User, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoStore) Search(ctx context.Context, query string) ([]models.User, error) {
	pattern := bson.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return s.find(ctx, bson.M{"$or": bson.A{
		bson.M{"email": pattern},
		bson.M{"full_name": pattern},
	}})
}

func (s *MongoStore) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, fromModel(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.User, error) {
	if params.Empty() {
		return s.GetByID(ctx, id)
	}

	set := bson.M{"updated_at": s.now()}
	unset := bson.M{}
	if params.Email != nil {
		set["email"] = *params.Email
	}
	setOptional(set, unset, "username", params.Username)
	if params.HashedPassword != nil {
		set["hashed_password"] = *params.HashedPassword
	}
	if params.FullName != nil {
		set["full_name"] = *params.FullName
	}
	if params.IsActive != nil {
		set["is_active"] = *params.IsActive
	}
	if params.IsSuperuser != nil {
		set["is_superuser"] = *params.IsSuperuser
	}
	setOptional(set, unset, "provider", params.Provider)
	setOptional(set, unset, "provider_user_id", params.ProviderUserID)
	if params.Picture != nil {
		set["picture"] = *params.Picture
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var doc userDocument
	err := s.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id.String()},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, translateMongoError(err)
	}
	return doc.toModel()
}

func (s *MongoStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// find returns the users matching filter ordered by email.
func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]models.User, error) {
	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		user, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDocument
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translateMongoError(err)
	}
	return doc.toModel()
}

// setOptional sets key when value is non-empty and unsets it when empty, so
// the partial unique indexes ignore cleared identifiers.
func setOptional(set, unset bson.M, key string, value *string) {
	if value == nil {
		return
	}
	if *value == "" {
		unset[key] = ""
		return
	}
	set[key] = *value
}

func translateMongoError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func fromModel(u *models.User) userDocument {
	return userDocument{
		ID:             u.ID.String(),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
		Email:          u.Email,
		Username:       u.Username,
		HashedPassword: u.HashedPassword,
		FullName:       u.FullName,
		IsActive:       u.IsActive,
		IsSuperuser:    u.IsSuperuser,
		Provider:       u.Provider,
		ProviderUserID: u.ProviderUserID,
		Picture:        u.Picture,
	}
}

func (d userDocument) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", d.ID, err)
	}
	return &models.User{
		ID:             id,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		Email:          d.Email,
		Username:       d.Username,
		HashedPassword: d.HashedPassword,
		FullName:       d.FullName,
		IsActive:       d.IsActive,
		IsSuperuser:    d.IsSuperuser,
		Provider:       d.Provider,
		ProviderUserID: d.ProviderUserID,
		Picture:        d.Picture,
	}, nil
}
