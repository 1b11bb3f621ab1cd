package models

// OrderStatus is the lifecycle state owned by the Order Store
type OrderStatus string

// Order statuses accepted by the Order Store. Reconciliation only ever writes
// StatusConfirmed.
const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the five known statuses
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// StatusUpdateRequest is the body of PUT /api/orders/{id}/status
type StatusUpdateRequest struct {
	Status OrderStatus `json:"status"`
}

// OrderRecord is the subset of an order the reconciliation core reads back
// from the Order Store.
type OrderRecord struct {
	ID     int64       `json:"id"`
	Status OrderStatus `json:"status,omitempty"`
}

// EmailRequest is the body of the notification service's plain email endpoint
type EmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// OrderConfirmationRequest is the body of the order-confirmation endpoint
type OrderConfirmationRequest struct {
	Email        string `json:"email"`
	OrderID      int64  `json:"orderId"`
	OrderDetails string `json:"orderDetails"`
}
