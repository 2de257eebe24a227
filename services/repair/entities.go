package main

// OrderIntent mirrors the wire shape of a queued order request. The repair
// consumer only stamps the marker fields; it never rewrites the order itself.
type OrderIntent struct {
	OrderID    string       `json:"order_id"`
	UserID     string       `json:"user_id"`
	Items      []IntentItem `json:"items"`
	Repaired   bool         `json:"repaired,omitempty"`
	RepairedAt string       `json:"repaired_at,omitempty"`
}

// IntentItem is one line item inside an OrderIntent
type IntentItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// DeadLetterInfo is the failure metadata the broker attaches when a message
// is dead-lettered
type DeadLetterInfo struct {
	Reason string
	Count  int64
}
