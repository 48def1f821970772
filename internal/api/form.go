package api

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"listings/internal/store"
	"listings/internal/upload"
)

// fieldsFromForm читает поля объявления из формы.
// Непереданное поле остаётся nil; кривое число даёт ошибку, а не 0.
func fieldsFromForm(form *upload.Form) (store.ListingFields, error) {
	var (
		f    store.ListingFields
		verr = fieldErrors{}
	)

	f.Title = textField(form, "title")
	f.City = textField(form, "city")
	f.District = textField(form, "district")
	f.Street = textField(form, "street")
	f.Type = textField(form, "type")
	f.Description = textField(form, "description")

	f.Price = verr.float(form.Values, "price")
	f.Area = verr.float(form.Values, "area")
	f.Rooms = verr.int(form.Values, "rooms")
	f.Floor = verr.int(form.Values, "floor")

	f.Balcony = verr.bool(form.Values, "balcony")
	f.Terrace = verr.bool(form.Values, "terrace")
	f.Garden = verr.bool(form.Values, "garden")

	if len(verr) > 0 {
		return f, &store.ValidationError{Fields: verr}
	}
	return f, nil
}

func textField(form *upload.Form, key string) *string {
	if !form.Has(key) {
		return nil
	}
	v := form.Values.Get(key)
	return &v
}

// removeImageIDs разбирает remove_images: JSON-массив, повтор ключа или список через запятую
func removeImageIDs(values url.Values) ([]string, error) {
	var ids []string
	for _, raw := range values["remove_images"] {
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == "null" {
			continue
		}
		if strings.HasPrefix(raw, "[") {
			var arr []any
			if err := json.Unmarshal([]byte(raw), &arr); err != nil {
				return nil, &store.ValidationError{Fields: map[string]string{"remove_images": "must be a JSON array of image ids"}}
			}
			for _, v := range arr {
				switch id := v.(type) {
				case string:
					ids = appendID(ids, id)
				case float64:
					ids = appendID(ids, strconv.FormatFloat(id, 'f', -1, 64))
				}
			}
			continue
		}
		for _, id := range strings.Split(raw, ",") {
			ids = appendID(ids, id)
		}
	}
	return ids, nil
}

func appendID(ids []string, id string) []string {
	if id = strings.TrimSpace(id); id != "" {
		ids = append(ids, id)
	}
	return ids
}

// filterFromQuery читает фильтры списка: q, city, type, rooms, min/max area и price
func filterFromQuery(q url.Values) (store.Filter, error) {
	verr := fieldErrors{}
	f := store.Filter{
		Query:    q.Get("q"),
		City:     q.Get("city"),
		Type:     q.Get("type"),
		Rooms:    verr.int(q, "rooms"),
		MinArea:  verr.float(q, "min_area"),
		MaxArea:  verr.float(q, "max_area"),
		MinPrice: verr.float(q, "min_price"),
		MaxPrice: verr.float(q, "max_price"),
	}
	if len(verr) > 0 {
		return f, &store.ValidationError{Fields: verr}
	}
	return f, nil
}

type fieldErrors map[string]string

// пустое значение считаем «не передано»
func (e fieldErrors) raw(values url.Values, key string) (string, bool) {
	v := strings.TrimSpace(values.Get(key))
	return v, v != ""
}

func (e fieldErrors) float(values url.Values, key string) *float64 {
	v, ok := e.raw(values, key)
	if !ok {
		return nil
	}
	// "1 250 000,50" -> 1250000.50
	v = strings.ReplaceAll(strings.ReplaceAll(v, " ", ""), ",", ".")
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		e[key] = "must be a number"
		return nil
	}
	return &n
}

func (e fieldErrors) int(values url.Values, key string) *int {
	v, ok := e.raw(values, key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e[key] = "must be an integer"
		return nil
	}
	return &n
}

func (e fieldErrors) bool(values url.Values, key string) *bool {
	v, ok := e.raw(values, key)
	if !ok {
		return nil
	}
	var b bool
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		b = true
	case "0", "false", "off", "no":
		b = false
	default:
		e[key] = "must be a boolean"
		return nil
	}
	return &b
}
