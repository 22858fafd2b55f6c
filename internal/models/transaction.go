package models

import "time"

// Transaction is a money movement recorded against a driver.
type Transaction struct {
	ID          string     `bson:"_id,omitempty" json:"id"`
	DriverID    string     `bson:"driver_id" json:"driver_id"`
	Type        string     `bson:"type" json:"type"` // "income", "expense", "salary", "fine"
	Amount      float64    `bson:"amount" json:"amount"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	Date        time.Time  `bson:"date" json:"date"`
	CreatedBy   string     `bson:"created_by" json:"created_by"`
	Lock        *LockState `bson:"lock,omitempty" json:"lock,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
}

func (t *Transaction) GetLock() *LockState { return t.Lock }
