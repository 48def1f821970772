package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"listings/internal/models"
)

// NewImage: загруженный файл, который нужно привязать к объявлению
type NewImage struct {
	Filename string
	MimeType string
	Data     []byte
}

// Filter: необязательные условия выборки для списка объявлений
type Filter struct {
	Query    string
	City     string
	Type     string
	Rooms    *int
	MinArea  *float64
	MaxArea  *float64
	MinPrice *float64
	MaxPrice *float64
}

// Store: доступ к объявлениям и их картинкам
type Store struct {
	db        *gorm.DB
	validator *validator.Validate
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, validator: newValidator()}
}

// метаданные картинки без байтов
var imageMetaColumns = []string{"id", "listing_id", "filename", "mime_type", "size", "position", "created_at"}

func preloadImages(db *gorm.DB) *gorm.DB {
	return db.Select(imageMetaColumns).Order("position ASC, created_at ASC")
}

// List отдаёт объявления от новых к старым
func (s *Store) List(ctx context.Context, f Filter) ([]models.Listing, error) {
	q := s.db.WithContext(ctx).Model(&models.Listing{}).Preload("Images", preloadImages)

	if text := strings.ToLower(strings.TrimSpace(f.Query)); text != "" {
		like := "%" + escapeLike(text) + "%"
		q = q.Where(
			`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(city) LIKE ? ESCAPE '\' OR LOWER(district) LIKE ? ESCAPE '\' OR `+
				`LOWER(street) LIKE ? ESCAPE '\' OR LOWER(type) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`,
			like, like, like, like, like, like,
		)
	}
	if v := strings.TrimSpace(f.City); v != "" {
		q = q.Where("LOWER(city) = ?", strings.ToLower(v))
	}
	if v := strings.TrimSpace(f.Type); v != "" {
		q = q.Where("LOWER(type) = ?", strings.ToLower(v))
	}
	if f.Rooms != nil {
		q = q.Where("rooms = ?", *f.Rooms)
	}
	if f.MinArea != nil {
		q = q.Where("area >= ?", *f.MinArea)
	}
	if f.MaxArea != nil {
		q = q.Where("area <= ?", *f.MaxArea)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}

	items := []models.Listing{}
	if err := q.Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("store.List: %w", err)
	}
	return items, nil
}

// Get: одно объявление вместе с id картинок
func (s *Store) Get(ctx context.Context, id uint) (*models.Listing, error) {
	return s.get(s.db.WithContext(ctx), id)
}

func (s *Store) get(db *gorm.DB, id uint) (*models.Listing, error) {
	var l models.Listing
	if err := db.Preload("Images", preloadImages).First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.Get: %w", err)
	}
	return &l, nil
}

// Create сохраняет объявление и его картинки в одной транзакции
func (s *Store) Create(ctx context.Context, fields ListingFields, images []NewImage) (*models.Listing, error) {
	fields.normalize()
	if err := s.validate(&fields, true); err != nil {
		return nil, err
	}

	l := models.Listing{Type: models.DefaultListingType}
	fields.apply(&l)

	var created *models.Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&l).Error; err != nil {
			return fmt.Errorf("store.Create listing: %w", err)
		}
		if err := insertImages(tx, l.ID, 0, images); err != nil {
			return err
		}
		var err error
		created, err = s.get(tx, l.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update меняет только переданные поля; removeImageIDs удаляются
// только если принадлежат этому объявлению.
func (s *Store) Update(ctx context.Context, id uint, fields ListingFields, images []NewImage, removeImageIDs []string) (*models.Listing, error) {
	fields.normalize()
	if err := s.validate(&fields, false); err != nil {
		return nil, err
	}

	var updated *models.Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Listing{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return fmt.Errorf("store.Update: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		changes := fields.changes()
		if len(changes) == 0 {
			changes["updated_at"] = time.Now()
		}
		// created_at никогда не трогаем
		if err := tx.Model(&models.Listing{}).Where("id = ?", id).Omit("created_at").Updates(changes).Error; err != nil {
			return fmt.Errorf("store.Update listing: %w", err)
		}

		if len(removeImageIDs) > 0 {
			if err := tx.Where("listing_id = ? AND id IN ?", id, removeImageIDs).Delete(&models.Image{}).Error; err != nil {
				return fmt.Errorf("store.Update remove images: %w", err)
			}
		}

		if len(images) > 0 {
			var next int
			if err := tx.Model(&models.Image{}).Where("listing_id = ?", id).
				Select("COALESCE(MAX(position) + 1, 0)").Scan(&next).Error; err != nil {
				return fmt.Errorf("store.Update image position: %w", err)
			}
			if err := insertImages(tx, id, next, images); err != nil {
				return err
			}
		}

		var err error
		updated, err = s.get(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete удаляет объявление вместе со всеми его картинками
func (s *Store) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", id).Delete(&models.Image{}).Error; err != nil {
			return fmt.Errorf("store.Delete images: %w", err)
		}
		res := tx.Delete(&models.Listing{}, id)
		if res.Error != nil {
			return fmt.Errorf("store.Delete listing: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetImage отдаёт картинку вместе с байтами
func (s *Store) GetImage(ctx context.Context, id string) (*models.Image, error) {
	var img models.Image
	if err := s.db.WithContext(ctx).First(&img, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.GetImage: %w", err)
	}
	return &img, nil
}

// DeleteImage удаляет одну картинку по id
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Image{})
	if res.Error != nil {
		return fmt.Errorf("store.DeleteImage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func insertImages(tx *gorm.DB, listingID uint, start int, images []NewImage) error {
	if len(images) == 0 {
		return nil
	}
	rows := make([]models.Image, 0, len(images))
	for i, img := range images {
		rows = append(rows, models.Image{
			ListingID: listingID,
			Filename:  img.Filename,
			MimeType:  img.MimeType,
			Size:      int64(len(img.Data)),
			Position:  start + i,
			Data:      img.Data,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("store: insert images: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
