package sequence

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/pkg/db/dbtest"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "ORDFE-001-26100001", Format(PrefixOrder, "001", "2610", 1))
	require.Equal(t, "INVFE-042-26019999", Format(PrefixInvoice, "042", "2601", 9999))
	require.Equal(t, "ORDFE-001-261010000", Format(PrefixOrder, "001", "2610", 10000))
}

func TestPeriodUsesBusinessTimeZone(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	// 2026-10-31 20:00 UTC is already November in UTC+7.
	at := time.Date(2026, time.October, 31, 20, 0, 0, 0, time.UTC)
	require.Equal(t, "2610", Period(at, time.UTC))
	require.Equal(t, "2611", Period(at, jakarta))
}

func TestNewSequencerRejectsUnsafeBranch(t *testing.T) {
	for _, branch := range []string{"", "01", "0001", "ab1", "1'; --"} {
		_, err := NewSequencer(branch, time.UTC)
		require.Error(t, err, branch)
	}
}

func TestNextIsMonotonicPerPartition(t *testing.T) {
	client := dbtest.NewSQLite(t)
	seq, err := NewSequencer("001", time.UTC)
	require.NoError(t, err)

	ctx := context.Background()
	october := time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC)
	november := time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC)

	var got []string
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		for _, at := range []time.Time{october, october, november} {
			number, err := seq.NextOrderNumber(ctx, tx, at)
			if err != nil {
				return err
			}
			got = append(got, number)
		}
		invoice, err := seq.NextInvoiceNumber(ctx, tx, october)
		if err != nil {
			return err
		}
		got = append(got, invoice)
		return nil
	}))

	require.Equal(t, []string{
		"ORDFE-001-26100001",
		"ORDFE-001-26100002",
		"ORDFE-001-26110001",
		"INVFE-001-26100001",
	}, got)
}

func TestNextRolledBackNumberIsReissued(t *testing.T) {
	client := dbtest.NewSQLite(t)
	seq, err := NewSequencer("001", time.UTC)
	require.NoError(t, err)
	ctx := context.Background()
	at := time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := seq.NextOrderNumber(ctx, tx, at); err != nil {
			return err
		}
		return fmt.Errorf("abort checkout")
	})
	require.Error(t, err)

	var number string
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		number, err = seq.NextOrderNumber(ctx, tx, at)
		return err
	}))
	require.Equal(t, "ORDFE-001-26100001", number)
}

func TestNextRejectsUnknownPrefix(t *testing.T) {
	client := dbtest.NewSQLite(t)
	seq, err := NewSequencer("001", time.UTC)
	require.NoError(t, err)

	_, err = seq.Next(context.Background(), client.DB(), Prefix("X; DROP"), time.Now())
	require.Error(t, err)
}

func TestNextConcurrentIssuanceIsDense(t *testing.T) {
	client := dbtest.NewPostgres(t)
	// A random branch keeps reruns against a shared database independent.
	branch := fmt.Sprintf("%03d", time.Now().UnixNano()%1000)
	seq, err := NewSequencer(branch, time.UTC)
	require.NoError(t, err)
	at := time.Date(2031, time.January, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, client.DB().Exec(
		"DELETE FROM document_sequences WHERE prefix = ? AND branch_code = ? AND period = ?",
		string(PrefixOrder), branch, Period(at, time.UTC)).Error)

	const k = 40
	numbers := make([]string, k)
	ctx := context.Background()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < k; i++ {
		i := i
		g.Go(func() error {
			return client.WithTx(gctx, func(tx *gorm.DB) error {
				number, err := seq.NextOrderNumber(gctx, tx, at)
				numbers[i] = number
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	sort.Strings(numbers)
	for i, number := range numbers {
		require.Equal(t, Format(PrefixOrder, branch, "3101", int64(i+1)), number)
	}
}
