package service

import (
	"context"
	"sync"
	"testing"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentCreate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	t.Run("opens a payment with one pending transaction", func(t *testing.T) {
		payment, err := env.services.Payment.Create(ctx, &models.CreatePaymentRequest{
			BookingID:  "bk-100",
			RequestID:  "req-100",
			TotalCents: 25000,
		})
		require.NoError(t, err)
		require.Len(t, payment.Transactions, 1)
		assert.Equal(t, models.TransactionStatusPending, payment.Status())
		assert.Equal(t, int64(25000), payment.Transactions[0].AmountCents)
	})

	t.Run("replays by request ID instead of double-charging", func(t *testing.T) {
		first, err := env.services.Payment.Create(ctx, &models.CreatePaymentRequest{
			BookingID:  "bk-101",
			RequestID:  "req-101",
			TotalCents: 30000,
		})
		require.NoError(t, err)

		second, err := env.services.Payment.Create(ctx, &models.CreatePaymentRequest{
			BookingID:  "bk-101",
			RequestID:  "req-101",
			TotalCents: 30000,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, second.Transactions, 1)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := env.services.Payment.Create(ctx, &models.CreatePaymentRequest{
			BookingID:  "bk-102",
			RequestID:  "req-102",
			TotalCents: -1,
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})
}

func TestPaymentDerivedStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	payment, err := env.services.Payment.Create(ctx, &models.CreatePaymentRequest{
		BookingID:  "bk-200",
		RequestID:  "req-200",
		TotalCents: 10000,
	})
	require.NoError(t, err)

	txnID := payment.Transactions[0].ID

	_, err = env.services.Transaction.Transition(ctx, txnID, models.TransactionStatusProcessing, nil)
	require.NoError(t, err)

	fetched, err := env.services.Payment.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusProcessing, fetched.Status())

	_, err = env.services.Transaction.Transition(ctx, txnID, models.TransactionStatusCompleted, nil)
	require.NoError(t, err)

	fetched, err = env.services.Payment.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, fetched.Status())
}

func TestPaymentRetry(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	create := func(t *testing.T, booking, request string) *models.Payment {
		payment, err := env.services.Payment.Create(ctx, &models.CreatePaymentRequest{
			BookingID:  booking,
			RequestID:  request,
			TotalCents: 10000,
		})
		require.NoError(t, err)
		return payment
	}

	failLatest := func(t *testing.T, payment *models.Payment) {
		latest := payment.Latest()
		_, err := env.services.Transaction.Transition(ctx, latest.ID, models.TransactionStatusProcessing, nil)
		require.NoError(t, err)
		_, err = env.services.Transaction.Transition(ctx, latest.ID, models.TransactionStatusFailed, nil)
		require.NoError(t, err)
	}

	t.Run("appends a fresh pending transaction after failure", func(t *testing.T) {
		payment := create(t, "bk-300", "req-300")
		failLatest(t, payment)

		retried, err := env.services.Payment.Retry(ctx, payment.ID)
		require.NoError(t, err)
		require.Len(t, retried.Transactions, 2)
		assert.Equal(t, models.TransactionStatusPending, retried.Status())
		assert.Equal(t, models.TransactionStatusFailed, retried.Transactions[0].Status)
	})

	t.Run("refuses while the latest transaction is pending", func(t *testing.T) {
		payment := create(t, "bk-301", "req-301")

		_, err := env.services.Payment.Retry(ctx, payment.ID)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidState))
	})

	t.Run("concurrent retries open exactly one new transaction", func(t *testing.T) {
		payment := create(t, "bk-303", "req-303")
		failLatest(t, payment)

		const callers = 5
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := env.services.Payment.Retry(ctx, payment.ID); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)

		final, err := env.services.Payment.Get(ctx, payment.ID)
		require.NoError(t, err)
		require.Len(t, final.Transactions, 2)
		assert.Equal(t, models.TransactionStatusPending, final.Status())
	})

	t.Run("refuses after the payment completed", func(t *testing.T) {
		payment := create(t, "bk-302", "req-302")
		latest := payment.Latest()
		_, err := env.services.Transaction.Transition(ctx, latest.ID, models.TransactionStatusProcessing, nil)
		require.NoError(t, err)
		_, err = env.services.Transaction.Transition(ctx, latest.ID, models.TransactionStatusCompleted, nil)
		require.NoError(t, err)

		_, err = env.services.Payment.Retry(ctx, payment.ID)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidState))
	})
}
