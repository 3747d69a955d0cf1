package domain

// Transaction is one purchase. It belongs to exactly one customer.
type Transaction struct {
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	CustomerID    string    `json:"customer_id" db:"customer_id"`
	Timestamp     Timestamp `json:"timestamp" db:"timestamp"`
	StationID     string    `json:"station_id,omitempty" db:"station_id"`
	City          string    `json:"city,omitempty" db:"city"`
	FuelType      string    `json:"fuel_type,omitempty" db:"fuel_type"`
	FuelLiters    float64   `json:"fuel_liters,omitempty" db:"fuel_liters"`
	FuelAmount    float64   `json:"fuel_amount,omitempty" db:"fuel_amount"`
	IsPremiumFuel bool      `json:"is_premium_fuel" db:"is_premium_fuel"`
	MarketAmount  float64   `json:"market_amount" db:"market_amount"`
	TotalAmount   float64   `json:"total_amount" db:"total_amount"`
	PaymentMethod string    `json:"payment_method,omitempty" db:"payment_method"`
}

// HasMarket reports whether the transaction included a market basket.
func (t Transaction) HasMarket() bool { return t.MarketAmount > 0 }

// Event is one digital interaction (app open, email click, ...).
type Event struct {
	EventID    string    `json:"event_id" db:"event_id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	Timestamp  Timestamp `json:"timestamp" db:"timestamp"`
	EventType  string    `json:"event_type" db:"event_type"`
	Channel    string    `json:"platform,omitempty" db:"channel"`
	Device     string    `json:"device,omitempty" db:"device"`
}
