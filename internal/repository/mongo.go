package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patient-records-server/internal/config"
	"patient-records-server/internal/pagination"
)

const (
	patientsCollection  = "patients"
	medOrdersCollection = "med_orders"
)

// ConnectMongo opens a client and verifies the server answers a ping.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes creates the indexes the list and lookup queries depend on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(patientsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("PatientCreatedAt"),
		},
		{
			Keys:    bson.D{{Key: "notes.id", Value: 1}},
			Options: options.Index().SetName("PatientNoteID"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create patient indexes: %w", err)
	}

	_, err = db.Collection(medOrdersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "patientId", Value: 1},
				{Key: "date", Value: -1},
			},
			Options: options.Index().SetName("MedOrderPatientDate"),
		},
		{
			Keys:    bson.D{{Key: "date", Value: -1}},
			Options: options.Index().SetName("MedOrderDate"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create med order indexes: %w", err)
	}
	return nil
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// parseObjectIDs keeps the well formed ids, dropping duplicates.
func parseObjectIDs(ids []string) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		if _, dup := seen[oid]; dup {
			continue
		}
		seen[oid] = struct{}{}
		out = append(out, oid)
	}
	return out
}

// findOptions turns page params into skip/limit with a descending sort key.
// _id breaks ties so equal timestamps keep one order across pages.
func findOptions(page pagination.Params, sortKey string) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: sortKey, Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))
}
