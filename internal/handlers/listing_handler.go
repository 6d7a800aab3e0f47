package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"lapak/internal/models"
	"lapak/internal/services"

	"github.com/gofiber/fiber/v2"
)

// maxImageBytes is the per-file upload ceiling.
const maxImageBytes = 5 * 1024 * 1024

// ListingHandler handles HTTP requests for listings. All routes here sit
// behind the auth middleware, which stores the caller's user ID in the
// request locals.
type ListingHandler struct {
	service *services.ListingService
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(service *services.ListingService) *ListingHandler {
	return &ListingHandler{
		service: service,
	}
}

// RegisterRoutes registers the listing routes with the Fiber app.
// The search route must precede the :id route.
func (h *ListingHandler) RegisterRoutes(router fiber.Router) {
	listings := router.Group("/listings")
	listings.Post("/", h.HandleCreateListing)
	listings.Get("/", h.HandleGetListings)
	listings.Get("/search", h.HandleSearchListings)
	listings.Get("/:id", h.HandleGetListing)
	listings.Get("/:id/images/:index", h.HandleGetListingImage)
	listings.Put("/:id", h.HandleUpdateListing)
	listings.Delete("/:id", h.HandleDeleteListing)
}

// listingSummary is the collection-view shape: no image payloads.
type listingSummary struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Tags        models.ListingTags `json:"tags"`
}

func summarize(listings []models.Listing) []listingSummary {
	summaries := make([]listingSummary, 0, len(listings))
	for _, l := range listings {
		summaries = append(summaries, listingSummary{
			ID:          l.ID,
			Title:       l.Title,
			Description: l.Description,
			Tags:        l.Tags,
		})
	}
	return summaries
}

// imageRef points a client at the image retrieval endpoint instead of
// embedding the payload in an update response.
type imageRef struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

func imageRefs(listing *models.Listing) []imageRef {
	refs := make([]imageRef, 0, len(listing.Images))
	for i := range listing.Images {
		refs = append(refs, imageRef{
			ID:  i,
			URL: fmt.Sprintf("/api/listings/%s/images/%d", listing.ID, i),
		})
	}
	return refs
}

// ownerID returns the authenticated caller's user ID set by the middleware.
func ownerID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// respondError maps a service error to its HTTP status. Storage failures
// surface a generic body; the detail only goes to the log.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrListingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Listing not found or you do not have access to it",
		})
	default:
		log.Printf("Listing operation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Internal server error",
		})
	}
}

// collectImages reads the uploaded image files from the multipart form and
// encodes each as a self-contained data URI. A request without a multipart
// body simply carries no images.
func collectImages(c *fiber.Ctx) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil
	}

	files := form.File["images"]
	images := make([]string, 0, len(files))
	for _, fileHeader := range files {
		if fileHeader.Size > maxImageBytes {
			return nil, fmt.Errorf("image %s exceeds the 5MB limit", fileHeader.Filename)
		}
		mimeType := fileHeader.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, fmt.Errorf("only image files are allowed")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open uploaded file %s: %w", fileHeader.Filename, err)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read uploaded file %s: %w", fileHeader.Filename, err)
		}

		images = append(images, encodeDataURI(mimeType, data))
	}
	return images, nil
}

func encodeDataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}

// HandleCreateListing creates a new listing owned by the caller from a
// multipart form carrying the text fields and up to ten image files.
func (h *ListingHandler) HandleCreateListing(c *fiber.Ctx) error {
	images, err := collectImages(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	}

	input := services.CreateListingInput{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Tags: models.ListingTags{
			Category:     c.FormValue("tags.category"),
			Manufacturer: c.FormValue("tags.manufacturer"),
			Distributor:  c.FormValue("tags.distributor"),
		},
		Images: images,
	}

	listing, err := h.service.CreateListing(c.Context(), ownerID(c), input)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Listing added successfully",
		"listing": listing,
	})
}

// HandleGetListings returns all of the caller's listings without images.
func (h *ListingHandler) HandleGetListings(c *fiber.Ctx) error {
	listings, err := h.service.GetListings(c.Context(), ownerID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":  "Listings retrieved successfully",
		"listings": summarize(listings),
	})
}

// HandleSearchListings returns the caller's listings matching the keyword.
func (h *ListingHandler) HandleSearchListings(c *fiber.Ctx) error {
	keyword := c.Query("keyword")
	if keyword == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Keyword is required for search",
		})
	}

	listings, err := h.service.SearchListings(c.Context(), ownerID(c), keyword)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Search results",
		"results": summarize(listings),
	})
}

// HandleGetListing returns one of the caller's listings with its images.
func (h *ListingHandler) HandleGetListing(c *fiber.Ctx) error {
	listing, err := h.service.GetListing(c.Context(), c.Params("id"), ownerID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Listing details fetched successfully",
		"listing": listing,
	})
}

// HandleGetListingImage serves a single stored image as raw bytes.
func (h *ListingHandler) HandleGetListingImage(c *fiber.Ctx) error {
	listing, err := h.service.GetListing(c.Context(), c.Params("id"), ownerID(c))
	if err != nil {
		return respondError(c, err)
	}

	index, err := c.ParamsInt("index")
	if err != nil || index < 0 || index >= len(listing.Images) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Image not found",
		})
	}

	mimeType, data, err := decodeDataURI(listing.Images[index])
	if err != nil {
		log.Printf("Failed to decode stored image %d of listing %s: %v", index, listing.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Internal server error",
		})
	}

	c.Set(fiber.HeaderContentType, mimeType)
	return c.Send(data)
}

// HandleUpdateListing applies a partial update from a multipart form. New
// image files are appended to the stored ones; the response refers to
// images by index and retrieval URL rather than embedding payloads.
func (h *ListingHandler) HandleUpdateListing(c *fiber.Ctx) error {
	images, err := collectImages(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	}

	patch := services.ListingPatch{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Tags: services.TagsPatch{
			Category:     c.FormValue("tags.category"),
			Manufacturer: c.FormValue("tags.manufacturer"),
			Distributor:  c.FormValue("tags.distributor"),
		},
		Images: images,
	}

	listing, err := h.service.UpdateListing(c.Context(), c.Params("id"), ownerID(c), patch)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Listing updated successfully",
		"listing": fiber.Map{
			"id":          listing.ID,
			"title":       listing.Title,
			"description": listing.Description,
			"tags":        listing.Tags,
			"images":      imageRefs(listing),
			"owner":       listing.OwnerID,
			"created_at":  listing.CreatedAt,
			"updated_at":  listing.UpdatedAt,
		},
	})
}

// HandleDeleteListing hard-deletes one of the caller's listings.
func (h *ListingHandler) HandleDeleteListing(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.DeleteListing(c.Context(), id, ownerID(c)); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Listing deleted successfully",
		"id":      id,
	})
}
