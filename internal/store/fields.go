package store

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"listings/internal/models"
)

// ListingFields: поля объявления из запроса.
// nil означает «поле не передано»: при обновлении старое значение остаётся.
type ListingFields struct {
	Title       *string  `json:"title" validate:"omitnil,min=1,max=255"`
	City        *string  `json:"city" validate:"omitnil,min=1,max=255"`
	District    *string  `json:"district" validate:"omitnil,max=255"`
	Street      *string  `json:"street" validate:"omitnil,max=255"`
	Price       *float64 `json:"price" validate:"omitnil,gte=0"`
	Rooms       *int     `json:"rooms" validate:"omitnil,gte=0,lte=1000"`
	Area        *float64 `json:"area" validate:"omitnil,gte=0"`
	Type        *string  `json:"type" validate:"omitnil,max=64"`
	Floor       *int     `json:"floor" validate:"omitnil,gte=-10,lte=500"`
	Balcony     *bool    `json:"balcony"`
	Terrace     *bool    `json:"terrace"`
	Garden      *bool    `json:"garden"`
	Description *string  `json:"description"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalize обрезает пробелы у строковых полей
func (f *ListingFields) normalize() {
	for _, s := range []*string{f.Title, f.City, f.District, f.Street, f.Type, f.Description} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	if f.Type != nil && *f.Type == "" {
		t := models.DefaultListingType
		f.Type = &t
	}
}

func (s *Store) validate(f *ListingFields, requireAll bool) error {
	verr := &ValidationError{}
	if requireAll {
		if f.Title == nil || *f.Title == "" {
			verr.add("title", "is required")
		}
		if f.City == nil || *f.City == "" {
			verr.add("city", "is required")
		}
		if f.Price == nil {
			verr.add("price", "is required")
		}
	}
	if err := s.validator.Struct(f); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, e := range verrs {
			switch e.Tag() {
			case "min":
				verr.add(e.Field(), "must not be empty")
			case "max":
				verr.add(e.Field(), "exceeds maximum")
			case "gte", "lte":
				verr.add(e.Field(), "out of allowed range")
			default:
				verr.add(e.Field(), "invalid value")
			}
		}
	}
	return verr.orNil()
}

// apply переносит переданные поля в модель
func (f *ListingFields) apply(l *models.Listing) {
	if f.Title != nil {
		l.Title = *f.Title
	}
	if f.City != nil {
		l.City = *f.City
	}
	if f.District != nil {
		l.District = *f.District
	}
	if f.Street != nil {
		l.Street = *f.Street
	}
	if f.Price != nil {
		l.Price = *f.Price
	}
	if f.Rooms != nil {
		l.Rooms = f.Rooms
	}
	if f.Area != nil {
		l.Area = f.Area
	}
	if f.Type != nil {
		l.Type = *f.Type
	}
	if f.Floor != nil {
		l.Floor = f.Floor
	}
	if f.Balcony != nil {
		l.Balcony = *f.Balcony
	}
	if f.Terrace != nil {
		l.Terrace = *f.Terrace
	}
	if f.Garden != nil {
		l.Garden = *f.Garden
	}
	if f.Description != nil {
		l.Description = *f.Description
	}
}

// changes: колонки для UPDATE, только переданные поля
func (f *ListingFields) changes() map[string]any {
	m := map[string]any{}
	if f.Title != nil {
		m["title"] = *f.Title
	}
	if f.City != nil {
		m["city"] = *f.City
	}
	if f.District != nil {
		m["district"] = *f.District
	}
	if f.Street != nil {
		m["street"] = *f.Street
	}
	if f.Price != nil {
		m["price"] = *f.Price
	}
	if f.Rooms != nil {
		m["rooms"] = *f.Rooms
	}
	if f.Area != nil {
		m["area"] = *f.Area
	}
	if f.Type != nil {
		m["type"] = *f.Type
	}
	if f.Floor != nil {
		m["floor"] = *f.Floor
	}
	if f.Balcony != nil {
		m["balcony"] = *f.Balcony
	}
	if f.Terrace != nil {
		m["terrace"] = *f.Terrace
	}
	if f.Garden != nil {
		m["garden"] = *f.Garden
	}
	if f.Description != nil {
		m["description"] = *f.Description
	}
	return m
}
