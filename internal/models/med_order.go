package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderKind records which endpoint created an order
type OrderKind string

const (
	OrderKindMed OrderKind = "med"
	OrderKindRx  OrderKind = "rx"
)

// UnknownPrescriber is shown for orders that could not be resolved
const UnknownPrescriber = "Unknown"

// MedOrder is a prescription stored in the med_orders collection. The owning
// patient lists its hex id in medOrderIds.
type MedOrder struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID      string             `bson:"patientId" json:"patientId"`
	PatientName    string             `bson:"patientName" json:"patientName"`
	Kind           OrderKind          `bson:"kind" json:"kind"`
	Items          []OrderItem        `bson:"items" json:"items"`
	PrescriberName string             `bson:"prescriberName" json:"prescriberName"`
	PrescriberID   string             `bson:"prescriberId" json:"prescriberId"`
	Specialty      string             `bson:"specialty,omitempty" json:"specialty,omitempty"`
	Date           time.Time          `bson:"date" json:"date"`
	ValidTill      *time.Time         `bson:"validTill,omitempty" json:"validTill,omitempty"`
	Validated      bool               `bson:"validated" json:"validated"`

	// Set on placeholders built for ids that did not resolve.
	Unresolved bool `bson:"-" json:"unresolved,omitempty"`
}

// OrderItem is one medication line of an order
type OrderItem struct {
	Diagnosis  string `bson:"diagnosis" json:"diagnosis" binding:"required,max=500"`
	Medication string `bson:"medication" json:"medication" binding:"required,max=200"`
	Dosage     string `bson:"dosage" json:"dosage" binding:"required,max=100"`
	Frequency  string `bson:"frequency" json:"frequency" binding:"required,max=100"`
	Quantity   string `bson:"quantity,omitempty" json:"quantity,omitempty" binding:"omitempty,max=50"`
}

// PlaceholderOrder stands in for an order id that could not be resolved
func PlaceholderOrder(id string) MedOrder {
	oid, _ := primitive.ObjectIDFromHex(id)
	return MedOrder{
		ID:             oid,
		PrescriberName: UnknownPrescriber,
		Items:          []OrderItem{},
		Unresolved:     true,
	}
}
