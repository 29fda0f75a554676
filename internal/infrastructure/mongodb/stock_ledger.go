package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/mongodb"
)

const (
	WarehouseStockCollection = "warehouse_stock"
	StoreStockCollection     = "store_stock"
)

// WarehouseStock is one product's level in one warehouse
type WarehouseStock struct {
	WarehouseID string `bson:"warehouseId"`
	ProductID   string `bson:"productId"`
	OnHand      int    `bson:"onHand"`
	Reserved    int    `bson:"reserved"`
}

// Available is the quantity that can still be reserved
func (s WarehouseStock) Available() int {
	return s.OnHand - s.Reserved
}

// StockLedger implements domain.StockLedger with conditional updates
type StockLedger struct {
	warehouse *mongo.Collection
	store     *mongo.Collection
}

// NewStockLedger creates a new stock ledger
func NewStockLedger(db *mongo.Database) *StockLedger {
	return &StockLedger{
		warehouse: db.Collection(WarehouseStockCollection),
		store:     db.Collection(StoreStockCollection),
	}
}

// EnsureIndexes creates one unique level per location and product
func (l *StockLedger) EnsureIndexes(ctx context.Context) error {
	if _, err := l.warehouse.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "warehouseId", Value: 1}, {Key: "productId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create warehouse stock index: %w", err)
	}
	if _, err := l.store.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "storeId", Value: 1}, {Key: "productId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create store stock index: %w", err)
	}
	return nil
}

// SetOnHand upserts the on-hand quantity of a warehouse product
func (l *StockLedger) SetOnHand(ctx context.Context, warehouseID, productID string, onHand int) error {
	filter := bson.M{"warehouseId": warehouseID, "productId": productID}
	update := mongodb.BuildUpdateWithTimestamp(bson.M{"onHand": onHand})
	update["$setOnInsert"] = bson.M{"reserved": 0}

	if _, err := l.warehouse.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to set warehouse stock: %w", err)
	}
	return nil
}

// GetWarehouseStock returns a zero level for unknown products
func (l *StockLedger) GetWarehouseStock(ctx context.Context, warehouseID, productID string) (WarehouseStock, error) {
	level := WarehouseStock{WarehouseID: warehouseID, ProductID: productID}
	err := l.warehouse.FindOne(ctx, bson.M{"warehouseId": warehouseID, "productId": productID}).Decode(&level)
	if err != nil && !mongodb.IsNotFound(err) {
		return WarehouseStock{}, fmt.Errorf("failed to read warehouse stock: %w", err)
	}
	return level, nil
}

// GetStoreStock returns zero for unknown products
func (l *StockLedger) GetStoreStock(ctx context.Context, storeID, productID string) (int, error) {
	var doc struct {
		Quantity int `bson:"quantity"`
	}
	err := l.store.FindOne(ctx, bson.M{"storeId": storeID, "productId": productID}).Decode(&doc)
	if err != nil && !mongodb.IsNotFound(err) {
		return 0, fmt.Errorf("failed to read store stock: %w", err)
	}
	return doc.Quantity, nil
}

// ReserveWarehouseStock holds qty only if that much is still available
func (l *StockLedger) ReserveWarehouseStock(ctx context.Context, warehouseID, productID string, qty int) error {
	filter := bson.M{
		"warehouseId": warehouseID,
		"productId":   productID,
		"$expr": bson.M{"$gte": bson.A{
			bson.M{"$subtract": bson.A{"$onHand", "$reserved"}},
			qty,
		}},
	}
	update := bson.M{
		"$inc": bson.M{"reserved": qty},
		"$set": bson.M{"updatedAt": mongodb.Now()},
	}

	result, err := l.warehouse.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to reserve warehouse stock: %w", err)
	}
	if result.MatchedCount == 1 {
		return nil
	}

	level, err := l.GetWarehouseStock(ctx, warehouseID, productID)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Requested:   qty,
		Available:   level.Available(),
	}
}

// ReleaseWarehouseReservation gives qty back, never dropping below zero
func (l *StockLedger) ReleaseWarehouseReservation(ctx context.Context, warehouseID, productID string, qty int) error {
	filter := bson.M{"warehouseId": warehouseID, "productId": productID}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reserved":  bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$reserved", qty}}}},
			"updatedAt": mongodb.Now(),
		}}},
	}

	if _, err := l.warehouse.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to release warehouse reservation: %w", err)
	}
	return nil
}

// IncrementStoreStock adds qty to the store's level, creating it on first delivery
func (l *StockLedger) IncrementStoreStock(ctx context.Context, storeID, productID string, qty int) error {
	now := mongodb.Now()
	filter := bson.M{"storeId": storeID, "productId": productID}
	update := bson.M{
		"$inc":         bson.M{"quantity": qty},
		"$set":         bson.M{"updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}

	if _, err := l.store.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to increment store stock: %w", err)
	}
	return nil
}

var _ domain.StockLedger = (*StockLedger)(nil)
