package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrTooLarge     = errors.New("uploaded file exceeds maximum allowed size")
	ErrTooManyFiles = errors.New("too many files in one request")
	ErrMalformed    = errors.New("malformed form body")
)

// FileFields: ключи формы, под которыми приходят картинки
var FileFields = []string{"images", "image", "files"}

const (
	DefaultMaxFileSize = 10 << 20
	DefaultMaxFiles    = 12

	// запас на текстовые поля и служебные заголовки multipart
	formOverhead = 1 << 20
)

// Limits: ограничения на один запрос
type Limits struct {
	MaxFileSize int64
	MaxFiles    int
}

func (l Limits) withDefaults() Limits {
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = DefaultMaxFileSize
	}
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultMaxFiles
	}
	return l
}

// File: принятый файл, байты держим в памяти до записи в БД
type File struct {
	Filename string
	MimeType string
	Data     []byte
}

// Form: текстовые поля и файлы из запроса
type Form struct {
	Values url.Values
	Files  []File
}

// Has сообщает, было ли поле передано вообще (пустое значение тоже считается)
func (f *Form) Has(key string) bool {
	_, ok := f.Values[key]
	return ok
}

// Read разбирает multipart или urlencoded тело запроса.
// Содержимое файлов не проверяется, тип берётся из заголовка части.
func Read(w http.ResponseWriter, r *http.Request, limits Limits) (*Form, error) {
	limits = limits.withDefaults()
	form := &Form{Values: url.Values{}}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
		if err := r.ParseForm(); err != nil {
			return nil, convertErr(err)
		}
		form.Values = r.PostForm
		return form, nil
	}

	maxBody := limits.MaxFileSize*int64(limits.MaxFiles) + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, convertErr(err)
	}

	// читаем части по одной: лимиты срабатывают на первом лишнем файле,
	// а не после буферизации всего тела
	var textBytes int64
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, convertErr(err)
		}

		name := p.FormName()
		if p.FileName() == "" {
			v, err := io.ReadAll(io.LimitReader(p, formOverhead-textBytes+1))
			if err != nil {
				return nil, convertErr(err)
			}
			if textBytes += int64(len(v)); textBytes > formOverhead {
				return nil, fmt.Errorf("%w: form fields exceed %d bytes", ErrTooLarge, formOverhead)
			}
			form.Values.Add(name, string(v))
			continue
		}
		if !isFileField(name) {
			continue
		}
		if len(form.Files) >= limits.MaxFiles {
			return nil, fmt.Errorf("%w: limit %d", ErrTooManyFiles, limits.MaxFiles)
		}
		f, err := readPart(p, limits.MaxFileSize)
		if err != nil {
			return nil, err
		}
		form.Files = append(form.Files, f)
	}
	return form, nil
}

func isFileField(name string) bool {
	for _, key := range FileFields {
		if key == name {
			return true
		}
	}
	return false
}

func readPart(p *multipart.Part, maxSize int64) (File, error) {
	data, err := io.ReadAll(io.LimitReader(p, maxSize+1))
	if err != nil {
		return File{}, convertErr(err)
	}
	if int64(len(data)) > maxSize {
		return File{}, fmt.Errorf("%w: %s", ErrTooLarge, p.FileName())
	}

	mimeType := strings.TrimSpace(p.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		// браузер не прислал тип, определяем по сигнатуре
		mimeType = mimetype.Detect(data).String()
	}
	return File{Filename: p.FileName(), MimeType: mimeType, Data: data}, nil
}

func convertErr(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) ||
		strings.Contains(strings.ToLower(err.Error()), "too large") {
		return fmt.Errorf("%w: %v", ErrTooLarge, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
