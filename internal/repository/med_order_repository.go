package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
)

// MongoMedOrderRepository implements MedOrderRepository over med_orders
type MongoMedOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoMedOrderRepository(db *mongo.Database) *MongoMedOrderRepository {
	return &MongoMedOrderRepository{collection: db.Collection(medOrdersCollection)}
}

func (r *MongoMedOrderRepository) Create(ctx context.Context, order *models.MedOrder) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}

	if _, err := r.collection.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("failed to insert med order: %w", err)
	}
	return nil
}

func (r *MongoMedOrderRepository) GetByIDs(ctx context.Context, ids []string) ([]models.MedOrder, error) {
	oids := parseObjectIDs(ids)
	orders := []models.MedOrder{}
	if len(oids) == 0 {
		return orders, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find med orders: %w", err)
	}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode med orders: %w", err)
	}
	return orders, nil
}

func (r *MongoMedOrderRepository) List(ctx context.Context, filter MedOrderFilter, page pagination.Params) ([]models.MedOrder, int64, error) {
	query := filterDocument(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count med orders: %w", err)
	}

	cursor, err := r.collection.Find(ctx, query, findOptions(page, "date"))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list med orders: %w", err)
	}

	orders := []models.MedOrder{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("failed to decode med orders: %w", err)
	}
	return orders, total, nil
}

func (r *MongoMedOrderRepository) SetValidated(ctx context.Context, id string, validated bool) (*models.MedOrder, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.MedOrder
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"validated": validated}},
		opts,
	).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update med order: %w", err)
	}
	return &order, nil
}

func filterDocument(filter MedOrderFilter) bson.M {
	query := bson.M{}
	if filter.PatientID != "" {
		query["patientId"] = filter.PatientID
	}
	return query
}
