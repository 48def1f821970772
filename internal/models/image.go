package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image: таблица images, байты картинки хранятся прямо в БД
type Image struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ListingID uint      `gorm:"index;not null" json:"listing_id"`
	Filename  string    `json:"filename"`
	MimeType  string    `gorm:"type:varchar(255);not null" json:"mime_type"`
	Size      int64     `gorm:"not null" json:"size"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	Data      []byte    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate выдаёт картинке случайный id
func (i *Image) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
