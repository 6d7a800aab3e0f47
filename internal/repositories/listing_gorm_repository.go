package repositories

import (
	"context"
	"fmt"
	"strings"

	"lapak/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// summaryColumns are the listing columns returned by list and search
// queries; the images column is skipped to keep collection views light.
var summaryColumns = []string{
	"id", "title", "description",
	"tag_category", "tag_manufacturer", "tag_distributor",
	"owner_id", "created_at", "updated_at",
}

// GORMListingRepository is a GORM implementation of ListingRepository.
type GORMListingRepository struct {
	db *gorm.DB
}

// NewGORMListingRepository creates a new instance of GORMListingRepository.
func NewGORMListingRepository(db *gorm.DB) *GORMListingRepository {
	return &GORMListingRepository{
		db: db,
	}
}

// GetAllByOwner retrieves all listings belonging to the given owner,
// without their image payloads.
func (r *GORMListingRepository) GetAllByOwner(ctx context.Context, ownerID string) ([]models.Listing, error) {
	var listings []models.Listing
	err := r.db.WithContext(ctx).
		Select(summaryColumns).
		Where("owner_id = ?", ownerID).
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get listings for owner %s: %w", ownerID, err)
	}
	return listings, nil
}

// GetByIDAndOwner retrieves a single listing matching both the listing ID
// and the owner ID. A listing owned by someone else yields ErrNotFound,
// indistinguishable from a listing that does not exist.
func (r *GORMListingRepository) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).
		First(&listing, "id = ? AND owner_id = ?", id, ownerID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("listing with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get listing by ID %s: %w", id, err)
	}
	return &listing, nil
}

// SearchByOwner performs a case-insensitive substring match across title,
// description and the three tag columns, scoped to the owner inside the
// query itself.
func (r *GORMListingRepository) SearchByOwner(ctx context.Context, ownerID, keyword string) ([]models.Listing, error) {
	pattern := "%" + strings.ToLower(keyword) + "%"
	var listings []models.Listing
	err := r.db.WithContext(ctx).
		Select(summaryColumns).
		Where("owner_id = ?", ownerID).
		Where(
			r.db.Where("lower(title) LIKE ?", pattern).
				Or("lower(description) LIKE ?", pattern).
				Or("lower(tag_category) LIKE ?", pattern).
				Or("lower(tag_manufacturer) LIKE ?", pattern).
				Or("lower(tag_distributor) LIKE ?", pattern),
		).
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search listings for owner %s: %w", ownerID, err)
	}
	return listings, nil
}

// Create creates a new listing in the database.
func (r *GORMListingRepository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// Save persists the mutable fields of an existing listing in one statement.
// The statement filters on both ID and owner, so the owner, creation time
// and identity can never change through this path.
func (r *GORMListingRepository) Save(ctx context.Context, listing *models.Listing) error {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND owner_id = ?", listing.ID, listing.OwnerID).
		Select("title", "description", "images",
			"tag_category", "tag_manufacturer", "tag_distributor", "updated_at").
		Updates(listing)
	if res.Error != nil {
		return fmt.Errorf("failed to save listing %s: %w", listing.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("listing with ID %s: %w", listing.ID, ErrNotFound)
	}
	return nil
}

// DeleteByIDAndOwner hard-deletes a listing matching both ID and owner.
func (r *GORMListingRepository) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.Listing{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete listing %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("listing with ID %s: %w", id, ErrNotFound)
	}
	return nil
}
