package approval

import (
	"context"
	"time"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

// SignatureStore persists signatures. Insert reports false when the signer
// already signed the timesheet.
type SignatureStore interface {
	ListByTimesheet(ctx context.Context, timesheetID string) ([]*repository.Signature, error)
	Insert(ctx context.Context, sig *repository.Signature) (bool, error)
	DeleteAllByTimesheet(ctx context.Context, timesheetID string) error
}

// Ledger is the append-only record of who signed which timesheet.
type Ledger struct {
	store SignatureStore
	now   func() time.Time
}

// NewLedger creates a Ledger over store.
func NewLedger(store SignatureStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Signatures returns the recorded signatures and the set of signer ids.
func (l *Ledger) Signatures(ctx context.Context, timesheetID string) ([]*repository.Signature, map[string]bool, error) {
	sigs, err := l.store.ListByTimesheet(ctx, timesheetID)
	if err != nil {
		return nil, nil, err
	}
	signed := make(map[string]bool, len(sigs))
	for _, s := range sigs {
		signed[s.SignerID] = true
	}
	return sigs, signed, nil
}

// Signers returns the set of ids that signed the timesheet.
func (l *Ledger) Signers(ctx context.Context, timesheetID string) (map[string]bool, error) {
	_, signed, err := l.Signatures(ctx, timesheetID)
	return signed, err
}

// Record appends a signature, failing with DuplicateSignature when the
// signer already signed.
func (l *Ledger) Record(ctx context.Context, timesheetID, signerID string, role repository.SignerRole) (*repository.Signature, error) {
	sig := &repository.Signature{
		TimesheetID: timesheetID,
		SignerID:    signerID,
		SignerRole:  role,
		SignedAt:    l.now().UTC(),
	}
	inserted, err := l.store.Insert(ctx, sig)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, errors.DuplicateSignature("You have already signed this timesheet")
	}
	return sig, nil
}

// Clear removes every signature of the timesheet.
func (l *Ledger) Clear(ctx context.Context, timesheetID string) error {
	return l.store.DeleteAllByTimesheet(ctx, timesheetID)
}
