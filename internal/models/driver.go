package models

import "time"

// Driver is a taxi driver on a fleet's roster.
type Driver struct {
	ID            string     `bson:"_id,omitempty" json:"id"`
	FullName      string     `bson:"full_name" json:"full_name"`
	Phone         string     `bson:"phone" json:"phone"`
	LicenseNumber string     `bson:"license_number" json:"license_number"`
	CarNumber     string     `bson:"car_number,omitempty" json:"car_number,omitempty"`
	Status        string     `bson:"status" json:"status"` // "active", "inactive", "blocked"
	Balance       float64    `bson:"balance" json:"balance"`
	TelegramID    string     `bson:"telegram_id,omitempty" json:"telegram_id,omitempty"`
	Lock          *LockState `bson:"lock,omitempty" json:"lock,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
}

func (d *Driver) GetLock() *LockState { return d.Lock }
