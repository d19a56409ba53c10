package post

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-lacakair/internal/auth"
	"backend-lacakair/internal/imaging"
	"backend-lacakair/internal/ingest"
	"backend-lacakair/internal/upload"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

type fakeIngestor struct {
	err  error
	raws []imaging.RawImage
}

func (f *fakeIngestor) Process(_ context.Context, raw imaging.RawImage) (ingest.Result, error) {
	f.raws = append(f.raws, raw)
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	return ingest.Result{URL: "https://i.example/new.jpg", Width: 800, Height: 600}, nil
}

type countingNotifier struct{ calls int }

func (n *countingNotifier) PostsChanged(context.Context) { n.calls++ }

func asUser(id, name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(auth.LocalUserID, id)
		c.Locals(auth.LocalUserName, name)
		return c.Next()
	}
}

func newPostApp(svc *Service, ing Ingestor, notify ChangeNotifier) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/posts"), svc, ing, notify, asUser("user-1", "Sari"), nil)
	return app
}

func multipartPost(t *testing.T, fields map[string]string, withImage bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if withImage {
		part, err := w.CreateFormFile("image", "photo.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write([]byte("jpeg-bytes"))
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/posts", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestCreatePostHandler(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Sari", "https://i.example/new.jpg", "river", f64(106.8), f64(-6.2), "Ciliwung").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	ing := &fakeIngestor{}
	notify := &countingNotifier{}
	app := newPostApp(NewService(mock), ing, notify)

	req := multipartPost(t, map[string]string{
		"caption":       " river ",
		"latitude":      "-6.2",
		"longitude":     "106.8",
		"location_name": "Ciliwung",
	}, true)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %v", resp.StatusCode, err)
	}

	var created Post
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ImageURL != "https://i.example/new.jpg" || !created.HasLocation() {
		t.Fatalf("unexpected post %+v", created)
	}
	if len(ing.raws) != 1 || string(ing.raws[0].Data) != "jpeg-bytes" {
		t.Fatalf("expected image handed to ingestor")
	}
	if notify.calls != 1 {
		t.Fatalf("expected one change notification, got %d", notify.calls)
	}
}

func TestCreatePostHandlerRejectsInput(t *testing.T) {
	cases := map[string]struct {
		fields    map[string]string
		withImage bool
	}{
		"missing image":  {fields: map[string]string{"caption": "x"}},
		"half geotag":    {fields: map[string]string{"latitude": "1"}, withImage: true},
		"bad latitude":   {fields: map[string]string{"latitude": "91", "longitude": "0"}, withImage: true},
		"bad longitude":  {fields: map[string]string{"latitude": "0", "longitude": "east"}, withImage: true},
		"lng over range": {fields: map[string]string{"latitude": "0", "longitude": "180.5"}, withImage: true},
		"nan latitude":   {fields: map[string]string{"latitude": "NaN", "longitude": "106.8"}, withImage: true},
		"nan longitude":  {fields: map[string]string{"latitude": "-6.2", "longitude": "nan"}, withImage: true},
		"inf longitude":  {fields: map[string]string{"latitude": "-6.2", "longitude": "-Inf"}, withImage: true},
	}
	for name, tc := range cases {
		ing := &fakeIngestor{}
		app := newPostApp(NewService(nil), ing, &countingNotifier{})
		resp, _ := app.Test(multipartPost(t, tc.fields, tc.withImage))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected bad request, got %d", name, resp.StatusCode)
		}
		if len(ing.raws) != 0 {
			t.Fatalf("%s: ingestor must not run", name)
		}
	}
}

func TestCreatePostHandlerIngestErrors(t *testing.T) {
	cases := map[int]error{
		http.StatusUnprocessableEntity: &imaging.DecodeError{URI: "form://photo.jpg"},
		http.StatusBadGateway:          &upload.APIError{Message: "invalid key"},
		http.StatusGatewayTimeout:      &upload.NetworkError{Op: "send", Timeout: true},
	}
	for want, ingErr := range cases {
		notify := &countingNotifier{}
		app := newPostApp(NewService(nil), &fakeIngestor{err: ingErr}, notify)
		resp, _ := app.Test(multipartPost(t, nil, true))
		if resp.StatusCode != want {
			t.Fatalf("%v: expected %d, got %d", ingErr, want, resp.StatusCode)
		}
		if notify.calls != 0 {
			t.Fatalf("failed create must not notify")
		}
	}
}

func TestListAndGetHandlers(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow("post-1", "user-1", "Sari", "https://i/1.jpg", "hi", []string{}, now, nil, nil, ""))
	mock.ExpectQuery(`WHERE id=\$1`).
		WithArgs("post-1").
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow("post-1", "user-1", "Sari", "https://i/1.jpg", "hi", []string{}, now, nil, nil, ""))

	app := newPostApp(NewService(mock), &fakeIngestor{}, &countingNotifier{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/posts", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v", err)
	}
	var posts []Post
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil || len(posts) != 1 {
		t.Fatalf("decode list: %v", err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/posts/post-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v", err)
	}
}

func TestGetHandlerNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`WHERE id=\$1`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	app := newPostApp(NewService(mock), &fakeIngestor{}, &countingNotifier{})
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/posts/missing", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", resp.StatusCode)
	}
}

func TestLikeHandler(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`UPDATE posts`).
		WithArgs("post-1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"likes"}).AddRow([]string{"user-1"}))

	notify := &countingNotifier{}
	app := newPostApp(NewService(mock), &fakeIngestor{}, notify)
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/posts/post-1/like", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("like status: %v", err)
	}

	var body struct {
		Likes []string `json:"likes"`
		Liked bool     `json:"liked"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Liked || len(body.Likes) != 1 {
		t.Fatalf("unexpected like response %+v", body)
	}
	if notify.calls != 1 {
		t.Fatalf("expected notification")
	}
}

func TestDeleteHandler(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT user_id FROM posts`).
		WithArgs("post-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1"))
	mock.ExpectExec(`DELETE FROM posts`).
		WithArgs("post-1", "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(`SELECT user_id FROM posts`).
		WithArgs("post-2").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-9"))

	notify := &countingNotifier{}
	app := newPostApp(NewService(mock), &fakeIngestor{}, notify)

	resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/posts/post-1", nil))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected no content, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/posts/post-2", nil))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", resp.StatusCode)
	}
	if notify.calls != 1 {
		t.Fatalf("expected one notification, got %d", notify.calls)
	}
}

func TestCreatePostHandlerUnknownUserName(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Unknown", "https://i.example/new.jpg", "", (*float64)(nil), (*float64)(nil), "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	app := fiber.New()
	RegisterRoutes(app.Group("/posts"), NewService(mock), &fakeIngestor{}, &countingNotifier{}, asUser("user-1", " "), nil)

	resp, _ := app.Test(multipartPost(t, nil, true))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected created, got %d", resp.StatusCode)
	}
}

func TestNearbyHandler(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`ST_DWithin`).
		WithArgs(106.8, -6.2, 5000.0).
		WillReturnRows(pgxmock.NewRows(postColumns))

	app := newPostApp(NewService(mock), &fakeIngestor{}, &countingNotifier{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/posts/nearby?lat=-6.2&lng=106.8", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("nearby status: %v", err)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/posts/nearby?lat=x", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestNearbyHandlerRejectsNonFinite(t *testing.T) {
	app := newPostApp(NewService(nil), &fakeIngestor{}, &countingNotifier{})

	for _, query := range []string{
		"lat=NaN&lng=106.8",
		"lat=-6.2&lng=NaN",
		"lat=-6.2&lng=106.8&radius_km=NaN",
		"lat=-6.2&lng=106.8&radius_km=Inf",
		"lat=-6.2&lng=106.8&radius_km=far",
	} {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/posts/nearby?"+query, nil))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected bad request, got %d", query, resp.StatusCode)
		}
	}
}

func TestListHandlerDropsNonFiniteStoredLocation(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WillReturnRows(pgxmock.NewRows(postColumns).
			AddRow("post-1", "user-1", "Sari", "https://i/1.jpg", "hi", []string{}, time.Now(), f64(math.NaN()), f64(106.8), ""))

	app := newPostApp(NewService(mock), &fakeIngestor{}, &countingNotifier{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/posts", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v", err)
	}
	var posts []Post
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(posts) != 1 || posts[0].HasLocation() || posts[0].Latitude != nil {
		t.Fatalf("expected stored NaN location to be dropped, got %+v", posts)
	}
}
