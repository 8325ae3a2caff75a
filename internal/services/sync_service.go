package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lanepos/backend/internal/audit"
	"github.com/lanepos/backend/internal/models"
	"github.com/lanepos/backend/internal/zoho"
)

const syncQueueKey = "zoho_sync_queue"

// SyncService forwards settled sales to Zoho Books. Sync failures are never
// fatal to the sale: they are recorded on the order and retried from the
// queue, the periodic sweep, or an explicit retry call.
type SyncService struct {
	db     *sql.DB
	redis  *redis.Client
	orders *OrderService
	zoho   zoho.Client
	audit  *audit.Logger

	drainInterval time.Duration
	sweepInterval time.Duration
}

func NewSyncService(db *sql.DB, redisClient *redis.Client, orders *OrderService, zohoClient zoho.Client) *SyncService {
	return &SyncService{
		db:            db,
		redis:         redisClient,
		orders:        orders,
		zoho:          zohoClient,
		audit:         audit.NewLogger(),
		drainInterval: 5 * time.Second,
		sweepInterval: 5 * time.Minute,
	}
}

// ScheduleSync queues an order for forwarding. Without Redis the sync runs
// inline on a fresh goroutine; either way the caller never blocks on Zoho.
func (s *SyncService) ScheduleSync(ctx context.Context, orderID string) {
	if s.redis == nil {
		go func() {
			syncCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := s.SyncOrder(syncCtx, orderID); err != nil {
				log.Printf("[SYNC] Inline sync for order %s failed: %v", orderID, err)
			}
		}()
		return
	}

	if err := s.redis.RPush(ctx, syncQueueKey, orderID).Err(); err != nil {
		// The periodic sweep catches anything that never made it onto the queue.
		log.Printf("[SYNC] Failed to queue order %s for sync: %v", orderID, err)
	}
}

// SyncOrder forwards one settled sale. It is safe to call repeatedly: an
// already-synced order is a no-op, and before creating a receipt it asks Zoho
// whether one already exists for the invoice so a lost success response never
// produces a duplicate.
func (s *SyncService) SyncOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPaid {
		log.Printf("[SYNC] Order %s is %s, skipping sync", orderID, order.Status)
		return nil
	}
	if order.SyncedToZoho && order.ZohoSalesReceiptID != "" {
		return nil
	}

	// Reconcile against remote truth before creating: local flags can lag
	// behind the remote system after a network partition.
	existingID, err := s.zoho.FindReceiptByReference(ctx, order.InvoiceNumber)
	if err != nil {
		return s.recordFailure(ctx, order, fmt.Errorf("lookup existing receipt: %w", err))
	}
	if existingID != "" {
		log.Printf("[SYNC] Order %s already has Zoho receipt %s, reconciling local flags", orderID, existingID)
		return s.markSynced(ctx, order, existingID)
	}

	snapshot, err := s.buildSnapshot(ctx, order)
	if err != nil {
		return s.recordFailure(ctx, order, err)
	}

	receiptID, err := s.zoho.CreateSalesReceipt(ctx, snapshot)
	if err != nil {
		return s.recordFailure(ctx, order, err)
	}
	return s.markSynced(ctx, order, receiptID)
}

// RetrySync re-runs the forwarding for one order on operator request.
func (s *SyncService) RetrySync(ctx context.Context, orderID string) error {
	return s.SyncOrder(ctx, orderID)
}

func (s *SyncService) buildSnapshot(ctx context.Context, order *models.Order) (*zoho.SaleSnapshot, error) {
	snapshot := &zoho.SaleSnapshot{
		OrderID:       order.ID,
		InvoiceNumber: order.InvoiceNumber,
		LaneID:        order.LaneID,
		Amount:        order.Amount,
		PaidAt:        order.UpdatedAt,
		Notes:         order.Notes,
	}

	payment, err := s.orders.CurrentPayment(ctx, order.ID)
	if err == ErrPaymentNotFound {
		return snapshot, nil
	}
	if err != nil {
		return nil, err
	}
	snapshot.Provider = payment.Provider
	snapshot.TransactionID = payment.TransactionID
	if payment.SettledAt != nil {
		snapshot.PaidAt = *payment.SettledAt
	}
	return snapshot, nil
}

func (s *SyncService) markSynced(ctx context.Context, order *models.Order, receiptID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET synced_to_zoho = true, zoho_sales_receipt_id = $1, sync_error = NULL, updated_at = $2
		WHERE id = $3
	`, receiptID, time.Now(), order.ID)
	if err != nil {
		return fmt.Errorf("mark order synced: %w", err)
	}

	s.audit.LogSync(order.ID, order.InvoiceNumber, receiptID, "SYNCED")
	log.Printf("[SYNC] Order %s synced to Zoho receipt %s", order.ID, receiptID)
	return nil
}

func (s *SyncService) recordFailure(ctx context.Context, order *models.Order, cause error) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET synced_to_zoho = false, sync_error = $1, updated_at = $2
		WHERE id = $3
	`, cause.Error(), time.Now(), order.ID)
	if err != nil {
		log.Printf("[SYNC] Failed to record sync error for order %s: %v", order.ID, err)
	}

	s.audit.LogSync(order.ID, order.InvoiceNumber, "", "FAILED")
	return fmt.Errorf("sync order %s: %w", order.ID, cause)
}

// RunWorker drains the sync queue and periodically sweeps paid-but-unsynced
// orders until ctx is cancelled. Started once from main.
func (s *SyncService) RunWorker(ctx context.Context) {
	drain := time.NewTicker(s.drainInterval)
	sweep := time.NewTicker(s.sweepInterval)
	defer drain.Stop()
	defer sweep.Stop()

	log.Println("[SYNC] Zoho sync worker started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[SYNC] Zoho sync worker stopped")
			return
		case <-drain.C:
			s.drainQueue(ctx)
		case <-sweep.C:
			s.sweepUnsynced(ctx)
		}
	}
}

func (s *SyncService) drainQueue(ctx context.Context) {
	if s.redis == nil {
		return
	}
	for {
		orderID, err := s.redis.LPop(ctx, syncQueueKey).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			log.Printf("[SYNC] Failed to pop sync queue: %v", err)
			return
		}
		if err := s.SyncOrder(ctx, orderID); err != nil {
			// Recorded on the order; the sweep retries later.
			log.Printf("[SYNC] Queued sync failed: %v", err)
		}
	}
}

func (s *SyncService) sweepUnsynced(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM orders
		WHERE status = $1 AND synced_to_zoho = false
		ORDER BY updated_at ASC
		LIMIT 100
	`, models.OrderStatusPaid)
	if err != nil {
		log.Printf("[SYNC] Sweep query failed: %v", err)
		return
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			log.Printf("[SYNC] Sweep scan failed: %v", err)
			return
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		if err := s.SyncOrder(ctx, id); err != nil {
			log.Printf("[SYNC] Sweep sync failed: %v", err)
		}
	}
}
