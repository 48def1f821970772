package models

import "encoding/json"

// DefaultListingType подставляется, если тип объекта не указан
const DefaultListingType = "apartment"

// Listing: таблица listings
type Listing struct {
	Base
	Title       string   `gorm:"not null" json:"title"`
	City        string   `gorm:"not null;index" json:"city"`
	District    string   `json:"district"`
	Street      string   `json:"street"`
	Price       float64  `gorm:"not null;index" json:"price"`
	Rooms       *int     `json:"rooms"`
	Area        *float64 `json:"area"`
	Type        string   `gorm:"type:varchar(64);not null;default:'apartment'" json:"type"`
	Floor       *int     `json:"floor"`
	Balcony     bool     `gorm:"not null;default:false" json:"balcony"`
	Terrace     bool     `gorm:"not null;default:false" json:"terrace"`
	Garden      bool     `gorm:"not null;default:false" json:"garden"`
	Description string   `gorm:"type:text" json:"description"`

	Images []Image `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"-"`
}

// ImageIDs: идентификаторы картинок в порядке загрузки
func (l *Listing) ImageIDs() []string {
	ids := make([]string, 0, len(l.Images))
	for _, img := range l.Images {
		ids = append(ids, img.ID)
	}
	return ids
}

// MarshalJSON отдаёт картинки списком id, сами байты идут через /api/images/:id
func (l Listing) MarshalJSON() ([]byte, error) {
	type plain Listing
	return json.Marshal(struct {
		plain
		Images []string `json:"images"`
	}{plain: plain(l), Images: l.ImageIDs()})
}
