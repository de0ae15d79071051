package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"patient-records-server/internal/config"
	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
)

func TestToSetDocument_OnlySetFields(t *testing.T) {
	city := "Lyon"
	prio := models.PriorityEmergency

	set, err := toSetDocument(models.PatientFields{City: &city, Priority: &prio})
	require.NoError(t, err)

	assert.Len(t, set, 2)
	assert.Equal(t, "Lyon", set["city"])
	assert.Equal(t, "Emergency", set["priority"])
}

func TestWithVersionBump(t *testing.T) {
	now := time.Now().UTC()
	in := bson.M{"$set": bson.M{"city": "Lyon"}}

	out := withVersionBump(in, now)

	set := out["$set"].(bson.M)
	assert.Equal(t, "Lyon", set["city"])
	assert.Equal(t, now, set["updatedAt"])
	assert.Equal(t, bson.M{"version": int64(1)}, out["$inc"])
	assert.NotContains(t, in["$set"].(bson.M), "updatedAt", "input must not be modified")

	pushed := withVersionBump(bson.M{"$push": bson.M{"notes": "x"}}, now)
	assert.Contains(t, pushed, "$push")
	assert.Contains(t, pushed["$set"].(bson.M), "updatedAt")
}

func TestPrepareNewPatient(t *testing.T) {
	now := time.Now().UTC()
	p := &models.Patient{FirstName: "Ana", MedOrders: []models.MedOrder{{}}}

	prepareNewPatient(p, now)

	assert.False(t, p.ID.IsZero())
	assert.NotNil(t, p.Notes)
	assert.NotNil(t, p.MedOrderIDs)
	assert.NotNil(t, p.Files)
	assert.Nil(t, p.MedOrders)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, now, p.CreatedAt)
}

func TestParseObjectID(t *testing.T) {
	_, err := parseObjectID("not-an-id")
	assert.ErrorIs(t, err, ErrInvalidID)

	oid := primitive.NewObjectID()
	got, err := parseObjectID(oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, oid, got)
}

func TestParseObjectIDs_SkipsInvalidAndDuplicates(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	got := parseObjectIDs([]string{a.Hex(), "bogus", b.Hex(), a.Hex(), ""})

	assert.Equal(t, []primitive.ObjectID{a, b}, got)
}

func TestFindOptions_SortHasTieBreaker(t *testing.T) {
	opts := findOptions(pagination.Params{Page: 3, Limit: 20}, "date")

	assert.Equal(t, bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}, opts.Sort)
	require.NotNil(t, opts.Skip)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(40), *opts.Skip)
	assert.Equal(t, int64(20), *opts.Limit)
}

func TestFilterDocument(t *testing.T) {
	assert.Empty(t, filterDocument(MedOrderFilter{}))
	assert.Equal(t, bson.M{"patientId": "p1"}, filterDocument(MedOrderFilter{PatientID: "p1"}))
}

// The tests below need a live server and run only when MONGODB_TEST_URI is set.

func testMongoRepos(t *testing.T) (*MongoPatientRepository, *MongoMedOrderRepository) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx := context.Background()
	client, db, err := ConnectMongo(ctx, config.MongoConfig{
		URI:      uri,
		Database: "patient_records_test_" + uuid.NewString()[:8],
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	require.NoError(t, EnsureIndexes(ctx, db))

	return NewMongoPatientRepository(db), NewMongoMedOrderRepository(db)
}

func TestMongoPatientRepository_NoteLifecycle(t *testing.T) {
	patients, _ := testMongoRepos(t)
	ctx := context.Background()

	p := &models.Patient{FirstName: "Ana", LastName: "Lima"}
	require.NoError(t, patients.Create(ctx, p))
	id := p.ID.Hex()

	first := models.Note{ID: "n1", NoteType: models.NoteTypePhysician, Content: "first", Draft: true}
	second := models.Note{ID: "n2", NoteType: models.NoteTypeTriage, Content: "second"}
	_, err := patients.PushNote(ctx, id, first)
	require.NoError(t, err)
	got, err := patients.PushNote(ctx, id, second)
	require.NoError(t, err)
	require.Len(t, got.Notes, 2)
	assert.Equal(t, int64(3), got.Version)

	first.Content = "edited"
	got, err = patients.ReplaceNote(ctx, id, first)
	require.NoError(t, err)
	n1, _ := got.FindNote("n1")
	n2, _ := got.FindNote("n2")
	assert.Equal(t, "edited", n1.Content)
	assert.Equal(t, "second", n2.Content)

	_, err = patients.ReplaceNote(ctx, id, models.Note{ID: "missing"})
	assert.ErrorIs(t, err, ErrNoteNotFound)

	_, err = patients.RemoveNote(ctx, id, "missing")
	assert.ErrorIs(t, err, ErrNoteNotFound)

	got, err = patients.RemoveNote(ctx, id, "n1")
	require.NoError(t, err)
	assert.Len(t, got.Notes, 1)

	_, err = patients.RemoveNote(ctx, primitive.NewObjectID().Hex(), "n2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoPatientRepository_UpdateVersionCheck(t *testing.T) {
	patients, _ := testMongoRepos(t)
	ctx := context.Background()

	p := &models.Patient{FirstName: "Ana"}
	require.NoError(t, patients.Create(ctx, p))

	prio := models.PriorityEmergency
	stale := int64(7)
	_, err := patients.Update(ctx, p.ID.Hex(), models.PatientFields{Priority: &prio}, &stale)
	assert.ErrorIs(t, err, ErrVersionConflict)

	current := int64(1)
	got, err := patients.Update(ctx, p.ID.Hex(), models.PatientFields{Priority: &prio}, &current)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityEmergency, got.Priority)
	assert.Equal(t, "Ana", got.FirstName)

	_, err = patients.Update(ctx, primitive.NewObjectID().Hex(), models.PatientFields{Priority: &prio}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoMedOrderRepository_GetByIDsAndList(t *testing.T) {
	patients, orders := testMongoRepos(t)
	ctx := context.Background()

	p := &models.Patient{FirstName: "Ana"}
	require.NoError(t, patients.Create(ctx, p))

	var ids []string
	for i := 0; i < 3; i++ {
		o := &models.MedOrder{PatientID: p.ID.Hex(), Kind: models.OrderKindMed, Date: time.Now().UTC()}
		require.NoError(t, orders.Create(ctx, o))
		_, err := patients.PushMedOrder(ctx, p.ID.Hex(), o.ID.Hex())
		require.NoError(t, err)
		ids = append(ids, o.ID.Hex())
	}

	found, err := orders.GetByIDs(ctx, append(ids, primitive.NewObjectID().Hex(), "bad"))
	require.NoError(t, err)
	assert.Len(t, found, 3)

	page, total, err := orders.List(ctx, MedOrderFilter{PatientID: p.ID.Hex()}, pagination.Params{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 1)

	validated, err := orders.SetValidated(ctx, ids[0], true)
	require.NoError(t, err)
	assert.True(t, validated.Validated)
}
