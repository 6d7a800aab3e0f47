package repositories

import (
	"context"

	"lapak/internal/models"
)

// ListingRepository defines the interface for listing data access.
// Every read and write against an individual listing filters on both the
// listing ID and the owner ID in a single query; there is deliberately no
// fetch-by-id-alone method.
type ListingRepository interface {
	GetAllByOwner(ctx context.Context, ownerID string) ([]models.Listing, error)
	GetByIDAndOwner(ctx context.Context, id, ownerID string) (*models.Listing, error)
	SearchByOwner(ctx context.Context, ownerID, keyword string) ([]models.Listing, error)
	Create(ctx context.Context, listing *models.Listing) error
	Save(ctx context.Context, listing *models.Listing) error
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) error
}
