package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/notification"
)

type Service interface {
	// PlaceOrder checks out the consumer's cart lines as one atomic order.
	PlaceOrder(ctx context.Context, consumer Consumer, lines []Line, paymentMethod string) (*Order, error)
	// CancelOrder cancels a still-pending order owned by the requesting
	// consumer and restores product counters.
	CancelOrder(ctx context.Context, orderID uuid.UUID, consumer Consumer) error
	// ClaimOrder exclusively assigns an unclaimed order to a delivery
	// partner; the first committer wins.
	ClaimOrder(ctx context.Context, orderID, partnerID uuid.UUID) error
	// CompleteOrder marks an order delivered by the partner who claimed it.
	CompleteOrder(ctx context.Context, orderID, partnerID uuid.UUID) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListConsumerOrders(ctx context.Context, consumerID uuid.UUID) ([]Order, error)
	ListPartnerDeliveries(ctx context.Context, partnerID uuid.UUID) ([]Order, error)
	ListClaimableOrders(ctx context.Context) ([]Order, error)
	CountClaimableOrders(ctx context.Context) (int, error)
}

type service struct {
	repo          Repository
	notifier      notification.Notifier
	notifications notification.Repository
}

func NewService(repo Repository, notifier notification.Notifier, notifications notification.Repository) Service {
	return &service{
		repo:          repo,
		notifier:      notifier,
		notifications: notifications,
	}
}

func (s *service) PlaceOrder(ctx context.Context, consumer Consumer, lines []Line, paymentMethod string) (*Order, error) {
	if len(lines) == 0 {
		log.Warn().Stringer("consumer_id", consumer.ID).Msg("service: attempt to checkout an empty cart")
		return nil, ErrEmptyCart
	}
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, errors.New("service: product id in cart line cannot be nil")
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("service: quantity for product %s must be greater than zero", line.ProductID)
		}
	}
	if paymentMethod != PaymentUPI && paymentMethod != PaymentCOD {
		return nil, fmt.Errorf("service: unsupported payment method %q", paymentMethod)
	}

	o := &Order{
		ConsumerID:    consumer.ID,
		PaymentMethod: paymentMethod,
		DropAddress:   consumer.Address,
	}

	placed, err := s.repo.PlaceOrder(ctx, o, lines)
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.Is(err, ErrProductNotFound) || errors.As(err, &stockErr) {
			return nil, err
		}
		log.Error().Err(err).Stringer("consumer_id", consumer.ID).Msg("service: failed to place order in repository")
		return nil, fmt.Errorf("service: failed to place order: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("consumer_id", consumer.ID).
		Float64("total_amount", o.TotalAmount).
		Msg("service: order placed")

	receiptLines := make([]notification.ReceiptLine, 0, len(placed))
	for _, pl := range placed {
		receiptLines = append(receiptLines, notification.ReceiptLine{
			Name:     pl.Name,
			Quantity: pl.Quantity,
			Unit:     pl.Unit,
			Price:    pl.Price,
		})
	}
	payload := notification.ReceiptPayload(o.ID.String(), o.TotalAmount, o.PaymentMethod, receiptLines)
	notification.Dispatch(s.notifier, notification.KindReceipt, consumer.Email, payload)

	if err := s.notifications.Create(ctx, consumer.ID, "Order placed", fmt.Sprintf("Order %s placed successfully.", o.ID)); err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to record in-app notification")
	}

	return o, nil
}

func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, consumer Consumer) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order for cancellation")
		return fmt.Errorf("service: failed to fetch order for cancellation: %w", err)
	}

	// Ownership never changes after creation, so this check cannot race with
	// the conditional status update below.
	if o.ConsumerID != consumer.ID {
		log.Warn().Stringer("order_id", orderID).Stringer("consumer_id", consumer.ID).Msg("service: cancellation denied, not the owner")
		return ErrUnauthorized
	}

	// Fast path on the loaded snapshot; the conditional update in the
	// repository remains the authoritative check under concurrency.
	if !o.Status.Cancellable() {
		return &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusCancelled}
	}

	if err := s.repo.Cancel(ctx, orderID); err != nil {
		var transitionErr *InvalidTransitionError
		if errors.Is(err, ErrNotFound) || errors.As(err, &transitionErr) {
			return err
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to cancel order in repository")
		return fmt.Errorf("service: failed to cancel order: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Msg("service: order cancelled")

	payload := notification.CancellationPayload(orderID.String(), time.Now().UTC())
	notification.Dispatch(s.notifier, notification.KindCancellation, consumer.Email, payload)

	if err := s.notifications.Create(ctx, o.ConsumerID, "Order cancelled", fmt.Sprintf("Order %s has been cancelled.", orderID)); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to record in-app notification")
	}

	return nil
}

func (s *service) ClaimOrder(ctx context.Context, orderID, partnerID uuid.UUID) error {
	if err := s.repo.Claim(ctx, orderID, partnerID); err != nil {
		var transitionErr *InvalidTransitionError
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyClaimed) || errors.As(err, &transitionErr) {
			return err
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("partner_id", partnerID).Msg("service: failed to claim order in repository")
		return fmt.Errorf("service: failed to claim order: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("partner_id", partnerID).Msg("service: order claimed")
	return nil
}

func (s *service) CompleteOrder(ctx context.Context, orderID, partnerID uuid.UUID) error {
	if err := s.repo.Complete(ctx, orderID, partnerID); err != nil {
		var transitionErr *InvalidTransitionError
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.As(err, &transitionErr) {
			return err
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("partner_id", partnerID).Msg("service: failed to complete order in repository")
		return fmt.Errorf("service: failed to complete order: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("partner_id", partnerID).Msg("service: order delivered")
	return nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return o, nil
}

func (s *service) ListConsumerOrders(ctx context.Context, consumerID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByConsumer(ctx, consumerID)
	if err != nil {
		log.Error().Err(err).Stringer("consumer_id", consumerID).Msg("service: failed to list consumer orders")
		return nil, fmt.Errorf("service: failed to list consumer orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListPartnerDeliveries(ctx context.Context, partnerID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByPartner(ctx, partnerID)
	if err != nil {
		log.Error().Err(err).Stringer("partner_id", partnerID).Msg("service: failed to list partner deliveries")
		return nil, fmt.Errorf("service: failed to list partner deliveries: %w", err)
	}
	return orders, nil
}

func (s *service) ListClaimableOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.repo.ListClaimable(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list claimable orders")
		return nil, fmt.Errorf("service: failed to list claimable orders: %w", err)
	}
	return orders, nil
}

func (s *service) CountClaimableOrders(ctx context.Context) (int, error) {
	count, err := s.repo.CountClaimable(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to count claimable orders")
		return 0, fmt.Errorf("service: failed to count claimable orders: %w", err)
	}
	return count, nil
}
