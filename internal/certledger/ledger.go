package certledger

import (
	"context"

	"github.com/certguard/certguard/internal/canonical"
)

// Ledger is the append-only certificate registry.
// Both MemoryLedger and PostgresLedger implement this interface.
type Ledger interface {
	// EnsureGenesis appends the genesis record if the ledger is empty.
	EnsureGenesis(ctx context.Context) error

	// Append hashes f, links it to the current tail and stores it.
	// The genesis record is created first when the ledger is empty.
	Append(ctx context.Context, f canonical.IdentityFields) (*Record, error)

	// GetByID returns the record with the given certificate id or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List returns all records in insertion order.
	List(ctx context.Context) ([]*Record, error)

	// Len returns the number of records, including genesis.
	Len(ctx context.Context) (int, error)

	// Root returns the hash of the tail record, or GenesisHash when empty.
	Root(ctx context.Context) (string, error)

	// VerifyIntegrity walks the whole chain and reports every broken link
	// and content mismatch.
	VerifyIntegrity(ctx context.Context) (*IntegrityReport, error)

	// TamperRandom alters the student name of one non-genesis record without
	// updating its hash. It exists to demonstrate VerifyIntegrity.
	TamperRandom(ctx context.Context) (*TamperResult, error)

	// Reset deletes every record and re-creates genesis.
	Reset(ctx context.Context) error
}

// TamperResult describes the record altered by TamperRandom.
type TamperResult struct {
	Seq           int    `json:"seq"`
	CertificateID string `json:"certificateId"`
	Message       string `json:"message"`
}

// TamperSuffix is appended to the student name by TamperRandom.
const TamperSuffix = " (Tampered)"
