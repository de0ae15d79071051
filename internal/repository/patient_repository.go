package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
)

// MongoPatientRepository implements PatientRepository over the patients collection
type MongoPatientRepository struct {
	collection *mongo.Collection
}

func NewMongoPatientRepository(db *mongo.Database) *MongoPatientRepository {
	return &MongoPatientRepository{collection: db.Collection(patientsCollection)}
}

func (r *MongoPatientRepository) Create(ctx context.Context, patient *models.Patient) error {
	prepareNewPatient(patient, time.Now().UTC())

	if _, err := r.collection.InsertOne(ctx, patient); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

func (r *MongoPatientRepository) Get(ctx context.Context, id string) (*models.Patient, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var patient models.Patient
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&patient); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find patient: %w", err)
	}
	return &patient, nil
}

func (r *MongoPatientRepository) List(ctx context.Context, page pagination.Params) ([]models.Patient, int64, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions(page, "createdAt"))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}

	patients := []models.Patient{}
	if err := cursor.All(ctx, &patients); err != nil {
		return nil, 0, fmt.Errorf("failed to decode patients: %w", err)
	}
	return patients, total, nil
}

func (r *MongoPatientRepository) Update(ctx context.Context, id string, fields models.PatientFields, expectedVersion *int64) (*models.Patient, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	set, err := toSetDocument(fields)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": oid}
	miss := ErrNotFound
	if expectedVersion != nil {
		filter["version"] = *expectedVersion
		miss = ErrVersionConflict
	}

	return r.mutate(ctx, oid, filter, bson.M{"$set": set}, miss)
}

func (r *MongoPatientRepository) PushNote(ctx context.Context, id string, note models.Note) (*models.Patient, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return r.mutate(ctx, oid, bson.M{"_id": oid}, bson.M{"$push": bson.M{"notes": note}}, ErrNotFound)
}

func (r *MongoPatientRepository) ReplaceNote(ctx context.Context, id string, note models.Note) (*models.Patient, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": oid, "notes.id": note.ID}
	update := bson.M{"$set": bson.M{"notes.$": note}}
	return r.mutate(ctx, oid, filter, update, ErrNoteNotFound)
}

func (r *MongoPatientRepository) RemoveNote(ctx context.Context, id string, noteID string) (*models.Patient, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": oid, "notes.id": noteID}
	update := bson.M{"$pull": bson.M{"notes": bson.M{"id": noteID}}}
	return r.mutate(ctx, oid, filter, update, ErrNoteNotFound)
}

func (r *MongoPatientRepository) PushMedOrder(ctx context.Context, id string, orderID string) (*models.Patient, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return r.mutate(ctx, oid, bson.M{"_id": oid}, bson.M{"$push": bson.M{"medOrderIds": orderID}}, ErrNotFound)
}

func (r *MongoPatientRepository) PushFile(ctx context.Context, id string, file models.FileRef) (*models.Patient, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return r.mutate(ctx, oid, bson.M{"_id": oid}, bson.M{"$push": bson.M{"files": file}}, ErrNotFound)
}

// mutate applies update, bumping version and updatedAt. When filter matches
// nothing, miss is returned if the patient itself exists and ErrNotFound
// otherwise.
func (r *MongoPatientRepository) mutate(ctx context.Context, oid primitive.ObjectID, filter, update bson.M, miss error) (*models.Patient, error) {
	update = withVersionBump(update, time.Now().UTC())

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var patient models.Patient
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&patient)
	if err == nil {
		return &patient, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}

	if miss == ErrNotFound {
		return nil, ErrNotFound
	}
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, fmt.Errorf("failed to check patient: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, miss
}

// prepareNewPatient assigns identity and timestamps and replaces nil arrays
// with empty ones so later $push operations have an array to append to.
func prepareNewPatient(p *models.Patient, now time.Time) {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Notes == nil {
		p.Notes = []models.Note{}
	}
	if p.MedOrderIDs == nil {
		p.MedOrderIDs = []string{}
	}
	if p.Files == nil {
		p.Files = []models.FileRef{}
	}
	p.MedOrders = nil
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
}

// toSetDocument renders the non-nil editable fields as a $set document.
func toSetDocument(fields models.PatientFields) (bson.M, error) {
	raw, err := bson.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patient fields: %w", err)
	}
	set := bson.M{}
	if err := bson.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("failed to encode patient fields: %w", err)
	}
	return set, nil
}

func withVersionBump(update bson.M, now time.Time) bson.M {
	out := bson.M{}
	for k, v := range update {
		out[k] = v
	}

	set := bson.M{}
	if existing, ok := out["$set"].(bson.M); ok {
		for k, v := range existing {
			set[k] = v
		}
	}
	set["updatedAt"] = now
	out["$set"] = set
	out["$inc"] = bson.M{"version": int64(1)}
	return out
}
