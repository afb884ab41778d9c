package models

import "time"

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// Product is a catalog item as served by the backend. Price is in the smallest currency unit.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       int64    `json:"price"`
	Images      []string `json:"images"`
	CategoryID  *string  `json:"category_id"`
}

// Category groups products in the catalog filter bar
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// CartLine is one product in the cart. Display fields are copied at add-time
// and are not refreshed from the catalog afterwards.
type CartLine struct {
	ProductID string   `json:"product_id"`
	Name      string   `json:"name"`
	Price     int64    `json:"price"`
	Images    []string `json:"images"`
	Quantity  int      `json:"quantity"`
}

// Subtotal returns price times quantity
func (l CartLine) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// FavoriteEntry marks a product as favorited. Absence means not favorited.
type FavoriteEntry struct {
	ProductID  string   `json:"product_id"`
	Name       string   `json:"name"`
	Price      int64    `json:"price"`
	Images     []string `json:"images"`
	IsFavorite bool     `json:"is_favorite"`
}

// RemoteCartRow is a cart row as listed by the backend: the product columns plus quantity
type RemoteCartRow struct {
	Product
	Quantity int `json:"quantity"`
}

// UserIdentity is the durable user record owned by the backend
type UserIdentity struct {
	ID         string `json:"id"`
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
}

// TelegramUser is the user descriptor carried by the Mini-App launch context
type TelegramUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// TelegramAuthRequest is the identity exchange body
type TelegramAuthRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
}

// TelegramAuthResponse is the identity exchange result
type TelegramAuthResponse struct {
	User  UserIdentity `json:"user"`
	IsNew bool         `json:"is_new"`
}

// CartMutationRequest is used for cart create and quantity update calls
type CartMutationRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// FavoriteRequest is used to add a favorite
type FavoriteRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

// OrderItem is one line of an order snapshot
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// OrderRequest is the body of the order submission call
type OrderRequest struct {
	UserID string      `json:"user_id"`
	Items  []OrderItem `json:"items"`
	Total  int64       `json:"total"`
}

// OrderSnapshot is the immutable summary built at checkout time
type OrderSnapshot struct {
	UserID         string      `json:"userId"`
	Items          []OrderItem `json:"items"`
	Total          int64       `json:"total"`
	CreatedAt      time.Time   `json:"createdAt"`
	Submitted      bool        `json:"submitted"`
	OperatorHandle string      `json:"operatorHandle,omitempty"`
}

// MessageResponse is the generic acknowledgement returned by backend mutations
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status         string    `json:"status"`
	Service        string    `json:"service,omitempty"`
	Version        string    `json:"version,omitempty"`
	Backend        string    `json:"backend,omitempty"`
	ActiveSessions int       `json:"activeSessions"`
	Timestamp      time.Time `json:"timestamp"`
}
