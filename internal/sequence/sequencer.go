// Package sequence issues human-readable document numbers of the form
// PREFIX-BBB-YYMMNNNN, where BBB is the branch code and NNNN a counter
// scoped to (prefix, branch, year-month).
package sequence

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"gorm.io/gorm"
)

// Prefix is the closed set of document kinds that own a counter.
type Prefix string

const (
	PrefixOrder   Prefix = "ORDFE"
	PrefixInvoice Prefix = "INVFE"
)

const minDigits = 4

var branchPattern = regexp.MustCompile(`^[0-9]{3}$`)

func (p Prefix) valid() bool {
	return p == PrefixOrder || p == PrefixInvoice
}

// Sequencer allocates numbers inside the caller's transaction. A rolled back
// transaction releases its number, so issued numbers stay dense.
type Sequencer struct {
	branch string
	loc    *time.Location
}

// NewSequencer validates the branch code and binds the business time zone
// used to derive the YYMM period.
func NewSequencer(branch string, loc *time.Location) (*Sequencer, error) {
	if !branchPattern.MatchString(branch) {
		return nil, fmt.Errorf("branch code must be three digits, got %q", branch)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Sequencer{branch: branch, loc: loc}, nil
}

// Branch returns the configured branch code.
func (s *Sequencer) Branch() string {
	return s.branch
}

// Next increments the (prefix, branch, period) counter and returns the formatted number.
func (s *Sequencer) Next(ctx context.Context, tx *gorm.DB, prefix Prefix, at time.Time) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("transaction required")
	}
	if !prefix.valid() {
		return "", fmt.Errorf("unknown sequence prefix %q", prefix)
	}
	period := Period(at, s.loc)

	var value int64
	// Identifiers are static; every variable part is a bound parameter.
	err := tx.WithContext(ctx).Raw(`
INSERT INTO document_sequences (prefix, branch_code, period, last_value, updated_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT (prefix, branch_code, period)
DO UPDATE SET last_value = document_sequences.last_value + 1, updated_at = excluded.updated_at
RETURNING last_value`, string(prefix), s.branch, period, time.Now().UTC()).Scan(&value).Error
	if err != nil {
		return "", fmt.Errorf("advance %s sequence: %w", prefix, err)
	}
	if value <= 0 {
		return "", fmt.Errorf("advance %s sequence: no value returned", prefix)
	}
	return Format(prefix, s.branch, period, value), nil
}

// NextOrderNumber is Next with PrefixOrder.
func (s *Sequencer) NextOrderNumber(ctx context.Context, tx *gorm.DB, at time.Time) (string, error) {
	return s.Next(ctx, tx, PrefixOrder, at)
}

// NextInvoiceNumber is Next with PrefixInvoice.
func (s *Sequencer) NextInvoiceNumber(ctx context.Context, tx *gorm.DB, at time.Time) (string, error) {
	return s.Next(ctx, tx, PrefixInvoice, at)
}

// Period formats the YYMM partition of at in loc.
func Period(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return at.In(loc).Format("0601")
}

// Format renders a document number. Values beyond 9999 widen the suffix.
func Format(prefix Prefix, branch, period string, value int64) string {
	return fmt.Sprintf("%s-%s-%s%0*d", prefix, branch, period, minDigits, value)
}
