package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"listings/internal/auth"
	mydb "listings/internal/db"
	"listings/internal/feed"
	"listings/internal/store"
	"listings/internal/upload"
)

const adminPassword = "s3cret"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func init() {
	gin.SetMode(gin.TestMode)
}

type client struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
}

func setupAPI(t *testing.T, fs FeedSource) *client {
	t.Helper()
	db, err := mydb.Open(mydb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, mydb.Migrate(db))

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	r := NewRouter(Deps{
		Store:    store.New(db),
		Gate:     auth.NewGate(string(hash)),
		Sessions: auth.SessionOptions{Secret: []byte("0123456789abcdef0123456789abcdef"), TTL: time.Hour},
		Limits:   upload.Limits{MaxFileSize: 1 << 10, MaxFiles: 3},
		Feed:     fs,
	})
	return &client{t: t, h: r, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) send(method, path string, body io.Reader, ct string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	return c.do(req)
}

func (c *client) login() {
	rec := c.send(http.MethodPost, "/api/login", strings.NewReader(`{"password":"`+adminPassword+`"}`), "application/json")
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
}

type file struct {
	field, name, ct string
	data            []byte
}

func multipartBody(t *testing.T, fields url.Values, files ...file) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			require.NoError(t, w.WriteField(k, v))
		}
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		if f.ct != "" {
			h.Set("Content-Type", f.ct)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

type listingJSON struct {
	ID       uint     `json:"id"`
	Title    string   `json:"title"`
	City     string   `json:"city"`
	District string   `json:"district"`
	Price    float64  `json:"price"`
	Rooms    *int     `json:"rooms"`
	Area     *float64 `json:"area"`
	Type     string   `json:"type"`
	Balcony  bool     `json:"balcony"`
	Images   []string `json:"images"`
}

type errorJSON struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (c *client) create(fields url.Values, files ...file) listingJSON {
	body, ct := multipartBody(c.t, fields, files...)
	rec := c.send(http.MethodPost, "/api/listings", body, ct)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[listingJSON](c.t, rec)
}

func TestListingLifecycleWithImage(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()

	created := c.create(
		url.Values{"title": {"Loft"}, "city": {"Gdańsk"}, "price": {"500000"}},
		file{field: "images", name: "a.png", ct: "image/png", data: pngBytes},
	)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "apartment", created.Type)
	require.Len(t, created.Images, 1)

	rec := c.get("/api/images/" + created.Images[0])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "a.png")

	rec = c.get("/api/listings")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]listingJSON](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created.Images, list[0].Images)

	rec = c.send(http.MethodDelete, "/api/listings/"+itoa(created.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, c.get("/api/images/"+created.Images[0]).Code)
	assert.Equal(t, http.StatusNotFound, c.get("/api/listings/"+itoa(created.ID)).Code)
}

func TestMutationsRequireAdmin(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()
	l := c.create(url.Values{"title": {"A"}, "city": {"Kraków"}, "price": {"1"}},
		file{field: "images", name: "a.png", ct: "image/png", data: pngBytes})

	anon := &client{t: t, h: c.h, cookies: map[string]*http.Cookie{}}
	body, ct := multipartBody(t, url.Values{"title": {"B"}, "city": {"Kraków"}, "price": {"2"}})

	for _, rec := range []*httptest.ResponseRecorder{
		anon.send(http.MethodPost, "/api/listings", body, ct),
		anon.send(http.MethodPut, "/api/listings/"+itoa(l.ID), strings.NewReader("title=Hacked"), "application/x-www-form-urlencoded"),
		anon.send(http.MethodDelete, "/api/listings/"+itoa(l.ID), nil, ""),
		anon.send(http.MethodDelete, "/api/images/"+l.Images[0], nil, ""),
	} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", decode[errorJSON](t, rec).Error)
	}

	list := decode[[]listingJSON](t, anon.get("/api/listings"))
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Title)
	assert.Len(t, list[0].Images, 1)
}

func TestLogoutRevokesAccess(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()
	assert.JSONEq(t, `{"authed":true}`, c.get("/api/me").Body.String())

	require.Equal(t, http.StatusOK, c.send(http.MethodPost, "/api/logout", nil, "").Code)
	assert.JSONEq(t, `{"authed":false}`, c.get("/api/me").Body.String())

	body, ct := multipartBody(t, url.Values{"title": {"A"}, "city": {"B"}, "price": {"1"}})
	assert.Equal(t, http.StatusUnauthorized, c.send(http.MethodPost, "/api/listings", body, ct).Code)
}

func TestPanelAliases(t *testing.T) {
	c := setupAPI(t, nil)

	rec := c.send(http.MethodPost, "/api/panel/login", strings.NewReader("password=wrong"), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.send(http.MethodPost, "/api/panel/login", strings.NewReader("password="+adminPassword), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authed":true}`, c.get("/api/panel/me").Body.String())

	require.Equal(t, http.StatusOK, c.send(http.MethodPost, "/api/panel/logout", nil, "").Code)
	assert.JSONEq(t, `{"authed":false}`, c.get("/api/panel/me").Body.String())
}

func TestCreateValidation(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()

	body, ct := multipartBody(t, url.Values{"title": {""}, "price": {"abc"}, "rooms": {"2.5"}, "balcony": {"maybe"}})
	rec := c.send(http.MethodPost, "/api/listings", body, ct)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := decode[errorJSON](t, rec)
	assert.Equal(t, "validation_error", e.Error)
	assert.Contains(t, e.Fields, "price")
	assert.Contains(t, e.Fields, "rooms")
	assert.Contains(t, e.Fields, "balcony")

	body, ct = multipartBody(t, url.Values{"city": {"Gdańsk"}, "price": {"-5"}})
	rec = c.send(http.MethodPost, "/api/listings", body, ct)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e = decode[errorJSON](t, rec)
	assert.Contains(t, e.Fields, "title")
	assert.Contains(t, e.Fields, "price")

	assert.Empty(t, decode[[]listingJSON](t, c.get("/api/listings")))
}

func TestCreatePayloadTooLarge(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()
	fields := url.Values{"title": {"A"}, "city": {"B"}, "price": {"1"}}

	body, ct := multipartBody(t, fields, file{field: "images", name: "big.jpg", ct: "image/jpeg", data: bytes.Repeat([]byte{1}, 2<<10)})
	rec := c.send(http.MethodPost, "/api/listings", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "payload_too_large", decode[errorJSON](t, rec).Error)

	var files []file
	for i := 0; i < 4; i++ {
		files = append(files, file{field: "images", name: "x.png", ct: "image/png", data: pngBytes})
	}
	body, ct = multipartBody(t, fields, files...)
	assert.Equal(t, http.StatusRequestEntityTooLarge, c.send(http.MethodPost, "/api/listings", body, ct).Code)

	assert.Empty(t, decode[[]listingJSON](t, c.get("/api/listings")))
}

func TestPartialUpdate(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()
	l := c.create(url.Values{"title": {"Old"}, "city": {"Gdańsk"}, "district": {"Oliwa"}, "price": {"100"}, "rooms": {"3"}})

	rec := c.send(http.MethodPut, "/api/listings/"+itoa(l.ID), strings.NewReader("title=New&balcony=on&area=55,5"), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[listingJSON](t, rec)

	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "Gdańsk", got.City)
	assert.Equal(t, "Oliwa", got.District)
	assert.Equal(t, float64(100), got.Price)
	require.NotNil(t, got.Rooms)
	assert.Equal(t, 3, *got.Rooms)
	require.NotNil(t, got.Area)
	assert.Equal(t, 55.5, *got.Area)
	assert.True(t, got.Balcony)

	rec = c.send(http.MethodPut, "/api/listings/999", strings.NewReader("title=X"), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = c.send(http.MethodPut, "/api/listings/abc", strings.NewReader("title=X"), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateImagesScopedToListing(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()
	img := file{field: "images", name: "a.png", ct: "image/png", data: pngBytes}
	a := c.create(url.Values{"title": {"A"}, "city": {"X"}, "price": {"1"}}, img, img)
	b := c.create(url.Values{"title": {"B"}, "city": {"X"}, "price": {"1"}}, img)

	// чужая картинка в remove_images игнорируется
	removeJSON, _ := json.Marshal([]string{a.Images[0], b.Images[0]})
	body, ct := multipartBody(t, url.Values{"remove_images": {string(removeJSON)}},
		file{field: "image", name: "c.jpg", data: []byte("\xff\xd8\xff\xe0 jpeg")})
	rec := c.send(http.MethodPut, "/api/listings/"+itoa(a.ID), body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[listingJSON](t, rec)
	require.Len(t, got.Images, 2)
	assert.Equal(t, a.Images[1], got.Images[0])
	assert.NotContains(t, got.Images, a.Images[0])

	assert.Equal(t, http.StatusOK, c.get("/api/images/"+b.Images[0]).Code)
	assert.Equal(t, http.StatusNotFound, c.get("/api/images/"+a.Images[0]).Code)

	newImg := c.get("/api/images/" + got.Images[1])
	require.Equal(t, http.StatusOK, newImg.Code)
	assert.Equal(t, "image/jpeg", newImg.Header().Get("Content-Type"))
}

func TestDeleteImage(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()
	l := c.create(url.Values{"title": {"A"}, "city": {"X"}, "price": {"1"}},
		file{field: "images", name: "a.png", ct: "image/png", data: pngBytes})

	rec := c.send(http.MethodDelete, "/api/images/"+l.Images[0], nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, c.get("/api/images/"+l.Images[0]).Code)
	assert.Empty(t, decode[listingJSON](t, c.get("/api/listings/"+itoa(l.ID))).Images)

	rec = c.send(http.MethodDelete, "/api/images/"+l.Images[0], nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorJSON](t, rec).Error)
}

func TestListFilters(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()
	c.create(url.Values{"title": {"Sea view"}, "city": {"Gdańsk"}, "price": {"500000"}, "rooms": {"2"}, "area": {"48"}})
	c.create(url.Values{"title": {"House"}, "city": {"Kraków"}, "price": {"900000"}, "rooms": {"5"}, "type": {"house"}})
	c.create(url.Values{"title": {"Studio"}, "city": {"gdańsk"}, "price": {"250000"}, "rooms": {"1"}, "area": {"25"}})

	titles := func(q string) []string {
		rec := c.get("/api/listings?" + q)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []string
		for _, l := range decode[[]listingJSON](t, rec) {
			out = append(out, l.Title)
		}
		return out
	}

	assert.Equal(t, []string{"Studio", "House", "Sea view"}, titles(""))
	assert.Equal(t, []string{"Studio", "Sea view"}, titles("city=GDAŃSK"))
	assert.Equal(t, []string{"House"}, titles("type=house"))
	assert.Equal(t, []string{"Sea view"}, titles("q=sea"))
	assert.Equal(t, []string{"House"}, titles("rooms=5"))
	assert.Equal(t, []string{"Studio", "Sea view"}, titles("max_price=500000"))
	assert.Equal(t, []string{"Sea view"}, titles("min_area=30&max_area=50"))
	assert.Empty(t, titles("q=100%25"))

	rec := c.get("/api/listings?min_price=cheap")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorJSON](t, rec).Fields, "min_price")
}

func TestGetUnknown(t *testing.T) {
	c := setupAPI(t, nil)

	assert.Equal(t, http.StatusNotFound, c.get("/api/listings/42").Code)
	assert.Equal(t, http.StatusNotFound, c.get("/api/listings/nope").Code)
	assert.Equal(t, http.StatusNotFound, c.get("/api/images/nope").Code)
}

type stubFeed struct {
	body []byte
	err  error
}

func (s stubFeed) Get(context.Context) ([]byte, error) { return s.body, s.err }

func TestFeedRoute(t *testing.T) {
	c := setupAPI(t, stubFeed{body: []byte(`{"items":[]}`)})
	rec := c.get("/api/feed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	c = setupAPI(t, stubFeed{err: feed.ErrUpstream})
	rec = c.get("/api/feed")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_error", decode[errorJSON](t, rec).Error)

	c = setupAPI(t, nil)
	assert.Equal(t, http.StatusNotFound, c.get("/api/feed").Code)
}

func TestRespondError_InternalIsGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/listings", nil)

	respondError(ctx, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Equal(t, "internal_error", decode[errorJSON](t, rec).Error)
}

func TestRemoveImageIDs(t *testing.T) {
	cases := map[string]struct {
		in   []string
		want []string
	}{
		"json":     {[]string{`["a","b"]`}, []string{"a", "b"}},
		"repeated": {[]string{"a", "b"}, []string{"a", "b"}},
		"comma":    {[]string{"a, b,,c"}, []string{"a", "b", "c"}},
		"empty":    {[]string{"", "null"}, nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := removeImageIDs(url.Values{"remove_images": tc.in})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := removeImageIDs(url.Values{"remove_images": {`["a"`}})
	var verr *store.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestWithCORS(t *testing.T) {
	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), []string{"http://admin.local"})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Origin", "http://admin.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://admin.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestGetImage_NonImageServedAsAttachment(t *testing.T) {
	c := setupAPI(t, nil)
	c.login()
	l := c.create(url.Values{"title": {"A"}, "city": {"X"}, "price": {"1"}},
		file{field: "images", name: "a.png", ct: "image/png", data: pngBytes},
		file{field: "images", name: "page.html", ct: "text/html", data: []byte("<script>alert(1)</script>")},
		file{field: "images", name: "logo.svg", ct: "image/svg+xml", data: []byte("<svg/>")},
	)
	require.Len(t, l.Images, 3)

	rec := c.get("/api/images/" + l.Images[0])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "inline"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	for _, id := range l.Images[1:] {
		rec = c.get("/api/images/" + id)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment"), rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	}
}

func TestInlineSafe(t *testing.T) {
	assert.True(t, inlineSafe("image/png"))
	assert.True(t, inlineSafe("IMAGE/JPEG; charset=binary"))
	assert.False(t, inlineSafe("image/svg+xml"))
	assert.False(t, inlineSafe("text/html"))
	assert.False(t, inlineSafe(""))
}
