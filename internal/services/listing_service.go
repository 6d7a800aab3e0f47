package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lapak/internal/models"
	"lapak/internal/repositories"
)

// EventPublisher publishes listing lifecycle events to the message broker.
type EventPublisher interface {
	PublishListingEvent(event string, data map[string]interface{}) error
}

// CreateListingInput carries the fields of a new listing. The owner is not
// part of the input; it is always bound to the authenticated caller.
type CreateListingInput struct {
	Title       string
	Description string
	Tags        models.ListingTags
	Images      []string
}

// TagsPatch is a partial update of the tag attributes. An empty sub-field
// means "keep the existing value"; tags merge per sub-field, never as a
// whole object.
type TagsPatch struct {
	Category     string
	Manufacturer string
	Distributor  string
}

// ListingPatch is a partial update of a listing. Empty fields are left
// untouched; images are appended, never replaced. The listing ID, owner and
// creation time are deliberately not expressible here.
type ListingPatch struct {
	Title       string
	Description string
	Tags        TagsPatch
	Images      []string
}

// IsEmpty reports whether the patch carries nothing to apply.
func (p ListingPatch) IsEmpty() bool {
	return p.Title == "" && p.Description == "" &&
		p.Tags.Category == "" && p.Tags.Manufacturer == "" && p.Tags.Distributor == "" &&
		len(p.Images) == 0
}

// ListingService handles business logic for listings. Every operation takes
// the authenticated owner ID and passes it into the repository filter, so a
// listing owned by someone else behaves exactly like a missing one.
type ListingService struct {
	repo   repositories.ListingRepository
	events EventPublisher
}

// NewListingService creates a new ListingService. events may be nil, in
// which case lifecycle events are skipped.
func NewListingService(repo repositories.ListingRepository, events EventPublisher) *ListingService {
	return &ListingService{
		repo:   repo,
		events: events,
	}
}

// CreateListing validates and persists a new listing bound to ownerID.
func (s *ListingService) CreateListing(ctx context.Context, ownerID string, input CreateListingInput) (*models.Listing, error) {
	var missing []string
	if input.Title == "" {
		missing = append(missing, "title")
	}
	if input.Description == "" {
		missing = append(missing, "description")
	}
	if input.Tags.Category == "" {
		missing = append(missing, "tags.category")
	}
	if input.Tags.Manufacturer == "" {
		missing = append(missing, "tags.manufacturer")
	}
	if input.Tags.Distributor == "" {
		missing = append(missing, "tags.distributor")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if len(input.Images) > models.MaxListingImages {
		return nil, fmt.Errorf("%w: a listing can hold at most %d images", ErrValidation, models.MaxListingImages)
	}

	now := time.Now()
	listing := &models.Listing{
		Title:       input.Title,
		Description: input.Description,
		Images:      models.ImageList(input.Images),
		Tags:        input.Tags,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.publish("listing.created", listing)
	return listing, nil
}

// GetListings retrieves all listings owned by ownerID, without images.
func (s *ListingService) GetListings(ctx context.Context, ownerID string) ([]models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()
	return s.repo.GetAllByOwner(ctx, ownerID)
}

// GetListing retrieves a single listing, including its images.
func (s *ListingService) GetListing(ctx context.Context, id, ownerID string) (*models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	listing, err := s.repo.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

// SearchListings finds the owner's listings whose title, description or tag
// attributes contain the keyword, case-insensitively.
func (s *ListingService) SearchListings(ctx context.Context, ownerID, keyword string) ([]models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()
	return s.repo.SearchByOwner(ctx, ownerID, keyword)
}

// UpdateListing applies a partial update to an owned listing. The merge is
// all-or-nothing: if the appended images would exceed the ceiling, no field
// is persisted at all.
func (s *ListingService) UpdateListing(ctx context.Context, id, ownerID string, patch ListingPatch) (*models.Listing, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	existing, err := s.repo.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get listing for update: %w", err)
	}

	merged, err := mergeListing(*existing, patch)
	if err != nil {
		return nil, err
	}
	merged.UpdatedAt = time.Now()

	if err := s.repo.Save(ctx, &merged); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to save listing: %w", err)
	}
	return &merged, nil
}

// DeleteListing hard-deletes an owned listing.
func (s *ListingService) DeleteListing(ctx context.Context, id, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if err := s.repo.DeleteByIDAndOwner(ctx, id, ownerID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrListingNotFound
		}
		return fmt.Errorf("failed to delete listing: %w", err)
	}

	s.publish("listing.deleted", &models.Listing{ID: id, OwnerID: ownerID})
	return nil
}

// mergeListing computes the post-update state of a listing. Present patch
// fields replace existing ones, tags merge per sub-field, and images append
// in order behind the existing ones. The image ceiling fails the whole
// merge so nothing is applied partially.
func mergeListing(existing models.Listing, patch ListingPatch) (models.Listing, error) {
	if len(patch.Images) > 0 {
		if len(existing.Images)+len(patch.Images) > models.MaxListingImages {
			return models.Listing{}, fmt.Errorf("%w: a listing can hold at most %d images", ErrValidation, models.MaxListingImages)
		}
		images := make(models.ImageList, 0, len(existing.Images)+len(patch.Images))
		images = append(images, existing.Images...)
		images = append(images, patch.Images...)
		existing.Images = images
	}

	if patch.Title != "" {
		existing.Title = patch.Title
	}
	if patch.Description != "" {
		existing.Description = patch.Description
	}
	if patch.Tags.Category != "" {
		existing.Tags.Category = patch.Tags.Category
	}
	if patch.Tags.Manufacturer != "" {
		existing.Tags.Manufacturer = patch.Tags.Manufacturer
	}
	if patch.Tags.Distributor != "" {
		existing.Tags.Distributor = patch.Tags.Distributor
	}

	return existing, nil
}

// publish sends a lifecycle event, tolerating an absent broker. Publishing
// failures are logged and never fail the request.
func (s *ListingService) publish(event string, listing *models.Listing) {
	if s.events == nil {
		return
	}
	data := map[string]interface{}{
		"listingID": listing.ID,
		"ownerID":   listing.OwnerID,
	}
	if err := s.events.PublishListingEvent(event, data); err != nil {
		log.Printf("Warning: failed to publish %s event for listing %s: %v", event, listing.ID, err)
	}
}
