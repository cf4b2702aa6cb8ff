package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var ErrUnauthorized = errors.New("product does not belong to this farmer")

type Service interface {
	AddProduct(ctx context.Context, p *Product) (*Product, error)
	// UpdateProduct changes price and stock for a product the farmer owns.
	UpdateProduct(ctx context.Context, farmerID, productID uuid.UUID, price float64, stock int) error
	DeleteProduct(ctx context.Context, farmerID, productID uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	ListMarket(ctx context.Context) ([]Product, error)
	ListFarmerProducts(ctx context.Context, farmerID uuid.UUID) ([]Product, error)
	GetFarmerStats(ctx context.Context, farmerID uuid.UUID) (*FarmerStats, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) AddProduct(ctx context.Context, p *Product) (*Product, error) {
	if p.Name == "" {
		return nil, errors.New("service: product name is required")
	}
	if p.Price < 0 {
		return nil, errors.New("service: product price cannot be negative")
	}
	if p.Stock < 0 {
		return nil, errors.New("service: product stock cannot be negative")
	}
	if p.Unit == "" {
		p.Unit = UnitCount
	}

	if _, err := s.repo.Create(ctx, p); err != nil {
		log.Error().Err(err).Msg("service: failed to create product in repository")
		return nil, fmt.Errorf("service: failed to create product: %w", err)
	}

	log.Info().Stringer("product_id", p.ID).Stringer("farmer_id", p.FarmerID).Msg("service: product added")
	return p, nil
}

func (s *service) UpdateProduct(ctx context.Context, farmerID, productID uuid.UUID, price float64, stock int) error {
	if price < 0 {
		return errors.New("service: product price cannot be negative")
	}
	if stock < 0 {
		return errors.New("service: product stock cannot be negative")
	}

	if err := s.checkOwnership(ctx, farmerID, productID); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, productID, price, stock); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", productID).Msg("service: failed to update product")
		return fmt.Errorf("service: failed to update product: %w", err)
	}
	return nil
}

func (s *service) DeleteProduct(ctx context.Context, farmerID, productID uuid.UUID) error {
	if err := s.checkOwnership(ctx, farmerID, productID); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, productID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", productID).Msg("service: failed to soft-delete product")
		return fmt.Errorf("service: failed to delete product: %w", err)
	}

	log.Info().Stringer("product_id", productID).Msg("service: product soft-deleted")
	return nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to fetch product")
		return nil, fmt.Errorf("service: failed to fetch product: %w", err)
	}
	if p.IsDeleted {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *service) ListMarket(ctx context.Context) ([]Product, error) {
	products, err := s.repo.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list market products")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}
	return products, nil
}

func (s *service) ListFarmerProducts(ctx context.Context, farmerID uuid.UUID) ([]Product, error) {
	products, err := s.repo.ListByFarmer(ctx, farmerID)
	if err != nil {
		log.Error().Err(err).Stringer("farmer_id", farmerID).Msg("service: failed to list farmer products")
		return nil, fmt.Errorf("service: failed to list farmer products: %w", err)
	}
	return products, nil
}

func (s *service) GetFarmerStats(ctx context.Context, farmerID uuid.UUID) (*FarmerStats, error) {
	stats, err := s.repo.FarmerStats(ctx, farmerID)
	if err != nil {
		log.Error().Err(err).Stringer("farmer_id", farmerID).Msg("service: failed to aggregate farmer stats")
		return nil, fmt.Errorf("service: failed to aggregate farmer stats: %w", err)
	}
	return stats, nil
}

func (s *service) checkOwnership(ctx context.Context, farmerID, productID uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("service: failed to fetch product for ownership check: %w", err)
	}
	if p.IsDeleted {
		return ErrNotFound
	}
	if p.FarmerID != farmerID {
		return ErrUnauthorized
	}
	return nil
}
