package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"lapak/internal/handlers"
	"lapak/internal/middleware"
	"lapak/internal/models"
	"lapak/internal/repositories"
	"lapak/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupApp builds a Fiber app over an in-memory SQLite database with the
// same route layout as main.
func setupApp() (*fiber.App, error) {
	viper.SetDefault("JWT_SECRET", "test_jwt_secret")
	viper.AutomaticEnv()
	jwtSecret := viper.GetString("JWT_SECRET")

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to in-memory database: %w", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Listing{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	userRepo := repositories.NewGORMUserRepository(db)
	listingRepo := repositories.NewGORMListingRepository(db)

	authService := services.NewAuthService(userRepo, jwtSecret)
	listingService := services.NewListingService(listingRepo, nil)

	authHandler := handlers.NewAuthHandler(authService)
	listingHandler := handlers.NewListingHandler(listingService)

	app := fiber.New(fiber.Config{BodyLimit: 64 * 1024 * 1024})

	api := app.Group("/api")
	authHandler.RegisterRoutes(api)

	protected := api.Group("", middleware.AuthRequired(authService))
	listingHandler.RegisterRoutes(protected)

	return app, nil
}

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type testImage struct {
	name string
	mime string
	data []byte
}

// multipartBody builds a multipart form with text fields and image files
// under the "images" field.
func multipartBody(t *testing.T, fields map[string]string, images []testImage) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		assert.NoError(t, writer.WriteField(k, v))
	}
	for _, img := range images {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, img.name))
		header.Set("Content-Type", img.mime)
		part, err := writer.CreatePart(header)
		assert.NoError(t, err)
		_, err = part.Write(img.data)
		assert.NoError(t, err)
	}
	assert.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func jsonRequest(method, path string, payload interface{}) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// signupAndSignin registers a fresh user and returns a valid token.
func signupAndSignin(t *testing.T, app *fiber.App, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "password123"}

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/signup", creds), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/signin", creds), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["token"].(string)
	assert.NotEmpty(t, token)
	return token
}

func listingFields() map[string]string {
	return map[string]string{
		"title":             "Family sedan",
		"description":       "Runs great",
		"tags.category":     "sedan",
		"tags.manufacturer": "Acme",
		"tags.distributor":  "X",
	}
}

// createListing posts a listing and returns its ID.
func createListing(t *testing.T, app *fiber.App, token string, fields map[string]string, images []testImage) string {
	t.Helper()
	body, contentType := multipartBody(t, fields, images)
	req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)

	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	respBody := decodeBody(t, resp)
	listing, _ := respBody["listing"].(map[string]interface{})
	id, _ := listing["id"].(string)
	assert.NotEmpty(t, id)
	return id
}

func TestSignupAndSignin(t *testing.T) {
	app, err := setupApp()
	assert.NoError(t, err)

	creds := map[string]string{"username": "auth_user", "password": "password123"}

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/signup", creds), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The unique constraint on username maps to 411.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/signup", creds), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusLengthRequired, resp.StatusCode)
	resp.Body.Close()

	// A short password never reaches the store.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/signup",
		map[string]string{"username": "short_pw_user", "password": "short"}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Wrong password and unknown username both yield 403.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/signin",
		map[string]string{"username": "auth_user", "password": "wrongpassword"}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/signin",
		map[string]string{"username": "no_such_user", "password": "password123"}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/signin", creds), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["token"])
}

func TestListingsRequireAuth(t *testing.T) {
	app, err := setupApp()
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req = httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("Authorization", "not-a-real-token")
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestListingLifecycle(t *testing.T) {
	app, err := setupApp()
	assert.NoError(t, err)
	token := signupAndSignin(t, app, "lifecycle_user")

	images := []testImage{
		{name: "front.png", mime: "image/png", data: []byte("front-bytes")},
		{name: "back.jpg", mime: "image/jpeg", data: []byte("back-bytes")},
	}
	id := createListing(t, app, token, listingFields(), images)

	// List view: no image payloads.
	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	listings, _ := body["listings"].([]interface{})
	assert.Len(t, listings, 1)
	summary, _ := listings[0].(map[string]interface{})
	assert.Equal(t, "Family sedan", summary["title"])
	assert.NotContains(t, summary, "images")

	// Detail view carries the stored data URIs.
	req = httptest.NewRequest(http.MethodGet, "/api/listings/"+id, nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	listing, _ := body["listing"].(map[string]interface{})
	imgs, _ := listing["images"].([]interface{})
	assert.Len(t, imgs, 2)
	assert.True(t, strings.HasPrefix(imgs[0].(string), "data:image/png;base64,"))

	// Raw image retrieval round-trips the uploaded bytes.
	req = httptest.NewRequest(http.MethodGet, "/api/listings/"+id+"/images/0", nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NoError(t, err)
	assert.Equal(t, []byte("front-bytes"), raw)

	// Out-of-range image index is a 404.
	req = httptest.NewRequest(http.MethodGet, "/api/listings/"+id+"/images/5", nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Partial update: only the manufacturer tag changes, one image appends.
	patchBody, contentType := multipartBody(t,
		map[string]string{"tags.manufacturer": "Zenith"},
		[]testImage{{name: "side.png", mime: "image/png", data: []byte("side-bytes")}})
	req = httptest.NewRequest(http.MethodPut, "/api/listings/"+id, patchBody)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	updated, _ := body["listing"].(map[string]interface{})
	tags, _ := updated["tags"].(map[string]interface{})
	assert.Equal(t, "sedan", tags["category"])
	assert.Equal(t, "Zenith", tags["manufacturer"])
	assert.Equal(t, "X", tags["distributor"])
	assert.Equal(t, "Family sedan", updated["title"])

	// Update responses refer to images by index and URL, not payload.
	refs, _ := updated["images"].([]interface{})
	assert.Len(t, refs, 3)
	firstRef, _ := refs[0].(map[string]interface{})
	assert.Equal(t, float64(0), firstRef["id"])
	assert.Equal(t, "/api/listings/"+id+"/images/0", firstRef["url"])

	// Empty patch is rejected.
	emptyBody, contentType := multipartBody(t, map[string]string{}, nil)
	req = httptest.NewRequest(http.MethodPut, "/api/listings/"+id, emptyBody)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Delete, then the listing is gone.
	req = httptest.NewRequest(http.MethodDelete, "/api/listings/"+id, nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, id, body["id"])

	req = httptest.NewRequest(http.MethodGet, "/api/listings/"+id, nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateListingValidation(t *testing.T) {
	app, err := setupApp()
	assert.NoError(t, err)
	token := signupAndSignin(t, app, "validation_user")

	// Missing description.
	fields := listingFields()
	delete(fields, "description")
	body, contentType := multipartBody(t, fields, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	respBody := decodeBody(t, resp)
	assert.Contains(t, respBody["message"], "description")

	// Eleven images exceed the ceiling.
	var images []testImage
	for i := 0; i < 11; i++ {
		images = append(images, testImage{
			name: fmt.Sprintf("img%d.png", i),
			mime: "image/png",
			data: []byte("x"),
		})
	}
	body, contentType = multipartBody(t, listingFields(), images)
	req = httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Non-image uploads are refused.
	body, contentType = multipartBody(t, listingFields(),
		[]testImage{{name: "notes.txt", mime: "text/plain", data: []byte("hello")}})
	req = httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// A file over the 5MB limit is refused.
	body, contentType = multipartBody(t, listingFields(),
		[]testImage{{name: "huge.png", mime: "image/png", data: make([]byte, 5*1024*1024+1)}})
	req = httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestImageCeilingOnUpdate(t *testing.T) {
	app, err := setupApp()
	assert.NoError(t, err)
	token := signupAndSignin(t, app, "ceiling_user")

	var images []testImage
	for i := 0; i < 8; i++ {
		images = append(images, testImage{
			name: fmt.Sprintf("img%d.png", i),
			mime: "image/png",
			data: []byte(fmt.Sprintf("payload-%d", i)),
		})
	}
	id := createListing(t, app, token, listingFields(), images)

	// Three more would make eleven: the whole update fails.
	overflow := []testImage{
		{name: "a.png", mime: "image/png", data: []byte("a")},
		{name: "b.png", mime: "image/png", data: []byte("b")},
		{name: "c.png", mime: "image/png", data: []byte("c")},
	}
	body, contentType := multipartBody(t, map[string]string{"title": "Should not stick"}, overflow)
	req := httptest.NewRequest(http.MethodPut, "/api/listings/"+id, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Atomicity: neither images nor title changed.
	req = httptest.NewRequest(http.MethodGet, "/api/listings/"+id, nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	respBody := decodeBody(t, resp)
	listing, _ := respBody["listing"].(map[string]interface{})
	imgs, _ := listing["images"].([]interface{})
	assert.Len(t, imgs, 8)
	assert.Equal(t, "Family sedan", listing["title"])

	// Two more fit exactly, appended behind the original eight.
	fit := []testImage{
		{name: "a.png", mime: "image/png", data: []byte("a")},
		{name: "b.png", mime: "image/png", data: []byte("b")},
	}
	body, contentType = multipartBody(t, nil, fit)
	req = httptest.NewRequest(http.MethodPut, "/api/listings/"+id, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req = httptest.NewRequest(http.MethodGet, "/api/listings/"+id, nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	respBody = decodeBody(t, resp)
	listing, _ = respBody["listing"].(map[string]interface{})
	imgs, _ = listing["images"].([]interface{})
	assert.Len(t, imgs, 10)
}

func TestOwnershipIsolation(t *testing.T) {
	app, err := setupApp()
	assert.NoError(t, err)
	ownerToken := signupAndSignin(t, app, "isolation_owner")
	otherToken := signupAndSignin(t, app, "isolation_other")

	id := createListing(t, app, ownerToken, listingFields(), nil)

	// Another user sees 404 on read, update and delete alike.
	req := httptest.NewRequest(http.MethodGet, "/api/listings/"+id, nil)
	req.Header.Set("Authorization", otherToken)
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	body, contentType := multipartBody(t, map[string]string{"title": "hijacked"}, nil)
	req = httptest.NewRequest(http.MethodPut, "/api/listings/"+id, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", otherToken)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	req = httptest.NewRequest(http.MethodDelete, "/api/listings/"+id, nil)
	req.Header.Set("Authorization", otherToken)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// The listing is untouched for its owner.
	req = httptest.NewRequest(http.MethodGet, "/api/listings/"+id, nil)
	req.Header.Set("Authorization", ownerToken)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	respBody := decodeBody(t, resp)
	listing, _ := respBody["listing"].(map[string]interface{})
	assert.Equal(t, "Family sedan", listing["title"])

	// The other user's list and search never include it.
	req = httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("Authorization", otherToken)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	respBody = decodeBody(t, resp)
	listings, _ := respBody["listings"].([]interface{})
	assert.Empty(t, listings)

	req = httptest.NewRequest(http.MethodGet, "/api/listings/search?keyword=sedan", nil)
	req.Header.Set("Authorization", otherToken)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	respBody = decodeBody(t, resp)
	results, _ := respBody["results"].([]interface{})
	assert.Empty(t, results)
}

func TestSearchListings(t *testing.T) {
	app, err := setupApp()
	assert.NoError(t, err)
	token := signupAndSignin(t, app, "search_user")

	fields := listingFields()
	createListing(t, app, token, fields, nil)

	other := map[string]string{
		"title":             "Pickup truck",
		"description":       "Heavy duty",
		"tags.category":     "truck",
		"tags.manufacturer": "Zenith",
		"tags.distributor":  "Y",
	}
	createListing(t, app, token, other, nil)

	// Missing keyword is a 400.
	req := httptest.NewRequest(http.MethodGet, "/api/listings/search", nil)
	req.Header.Set("Authorization", token)
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Case-insensitive match on a tag field.
	req = httptest.NewRequest(http.MethodGet, "/api/listings/search?keyword=ZEN", nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	results, _ := body["results"].([]interface{})
	assert.Len(t, results, 1)
	match, _ := results[0].(map[string]interface{})
	assert.Equal(t, "Pickup truck", match["title"])

	// Substring match on the description.
	req = httptest.NewRequest(http.MethodGet, "/api/listings/search?keyword=runs", nil)
	req.Header.Set("Authorization", token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	body = decodeBody(t, resp)
	results, _ = body["results"].([]interface{})
	assert.Len(t, results, 1)
	match, _ = results[0].(map[string]interface{})
	assert.Equal(t, "Family sedan", match["title"])
}
