package application

// CreateDistributionCommand submits one shipment from a warehouse to a store
type CreateDistributionCommand struct {
	WarehouseID        string
	DistributorID      string
	DestinationStoreID string
	Items              []CreateDistributionItem
}

// CreateDistributionItem is one product line of a shipment.
// UnitPrice is a decimal string so that no precision is lost on the way in.
type CreateDistributionItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   string
	Notes       string
}

// ListBatchesQuery lists the batches delivered to one store.
// A non-empty WarehouseID narrows the list to that warehouse's shipments.
type ListBatchesQuery struct {
	StoreID     string
	WarehouseID string
	Search      string
	Status      string
	Page        int64
	PageSize    int64
}

// GetBatchQuery resolves a batch id or a member line-item id
type GetBatchQuery struct {
	StoreID  string
	BatchRef string
}

// TransitionCommand accepts or cancels a batch on behalf of a store user
type TransitionCommand struct {
	StoreID  string
	BatchRef string
	ActorID  string
	Reason   string
}

// WithdrawCommand cancels a pending batch on behalf of the shipping warehouse
type WithdrawCommand struct {
	WarehouseID string
	StoreID     string
	BatchRef    string
	ActorID     string
	Reason      string
}
