package repositories

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"lapak/internal/models"

	"github.com/google/uuid"
)

// MockListingRepository is an in-memory implementation of ListingRepository.
// It mirrors the owner-scoping semantics of the GORM implementation so
// services behave identically against either.
type MockListingRepository struct {
	listings map[string]models.Listing
	mu       sync.RWMutex
}

// NewMockListingRepository creates a new instance of MockListingRepository.
func NewMockListingRepository() *MockListingRepository {
	return &MockListingRepository{
		listings: make(map[string]models.Listing),
	}
}

// GetAllByOwner returns all listings owned by ownerID, without images.
func (r *MockListingRepository) GetAllByOwner(ctx context.Context, ownerID string) ([]models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.Listing, 0)
	for _, l := range r.listings {
		if l.OwnerID == ownerID {
			l.Images = nil
			result = append(result, l)
		}
	}
	return result, nil
}

// GetByIDAndOwner returns the listing only when both ID and owner match.
func (r *MockListingRepository) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.listings[id]
	if !ok || listing.OwnerID != ownerID {
		return nil, fmt.Errorf("listing with ID %s: %w", id, ErrNotFound)
	}
	return &listing, nil
}

// SearchByOwner performs a case-insensitive substring match over the
// owner's listings.
func (r *MockListingRepository) SearchByOwner(ctx context.Context, ownerID, keyword string) ([]models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kw := strings.ToLower(keyword)
	result := make([]models.Listing, 0)
	for _, l := range r.listings {
		if l.OwnerID != ownerID {
			continue
		}
		if containsFold(l.Title, kw) || containsFold(l.Description, kw) ||
			containsFold(l.Tags.Category, kw) ||
			containsFold(l.Tags.Manufacturer, kw) ||
			containsFold(l.Tags.Distributor, kw) {
			l.Images = nil
			result = append(result, l)
		}
	}
	return result, nil
}

func containsFold(s, lowerKeyword string) bool {
	return strings.Contains(strings.ToLower(s), lowerKeyword)
}

// Create adds a new listing.
func (r *MockListingRepository) Create(ctx context.Context, listing *models.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	r.listings[listing.ID] = *listing
	return nil
}

// Save replaces the mutable fields of an existing listing, keeping owner
// and creation time intact.
func (r *MockListingRepository) Save(ctx context.Context, listing *models.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.listings[listing.ID]
	if !ok || existing.OwnerID != listing.OwnerID {
		return fmt.Errorf("listing with ID %s: %w", listing.ID, ErrNotFound)
	}
	existing.Title = listing.Title
	existing.Description = listing.Description
	existing.Images = listing.Images
	existing.Tags = listing.Tags
	existing.UpdatedAt = listing.UpdatedAt
	r.listings[listing.ID] = existing
	return nil
}

// DeleteByIDAndOwner removes a listing when both ID and owner match.
func (r *MockListingRepository) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[id]
	if !ok || listing.OwnerID != ownerID {
		return fmt.Errorf("listing with ID %s: %w", id, ErrNotFound)
	}
	delete(r.listings, id)
	return nil
}
