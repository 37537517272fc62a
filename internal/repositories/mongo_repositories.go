package repositories

import (
	"context"
	"errors"
	"time"

	"munda-checkout/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrReceiptNotFound = errors.New("receipt not found")

type receiptRepository struct {
	collection *mongo.Collection
}

func NewReceiptRepository(db *mongo.Database) ReceiptRepository {
	return &receiptRepository{
		collection: db.Collection("order_receipts"),
	}
}

// EnsureReceiptIndexes creates the lookup indexes used by the repository.
func EnsureReceiptIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("order_receipts").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (r *receiptRepository) Create(ctx context.Context, receipt *models.OrderReceipt) error {
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now()
	}

	result, err := r.collection.InsertOne(ctx, receipt)
	if err != nil {
		return err
	}
	receipt.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *receiptRepository) GetByOrderNumber(ctx context.Context, buyerID, orderNumber string) (*models.OrderReceipt, error) {
	var receipt models.OrderReceipt
	err := r.collection.FindOne(ctx, bson.M{"buyer_id": buyerID, "order_number": orderNumber}).Decode(&receipt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *receiptRepository) GetByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]models.OrderReceipt, error) {
	receipts := []models.OrderReceipt{}
	if offset < 0 {
		offset = 0
	}

	filter := bson.M{"buyer_id": buyerID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &receipts); err != nil {
		return nil, err
	}

	return receipts, nil
}
