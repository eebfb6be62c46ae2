package certledger

import (
	"errors"
	"time"

	"github.com/certguard/certguard/internal/canonical"
)

// GenesisHash is the well-known PreviousHash of the genesis record.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// GenesisID is the certificate id reserved for the genesis record.
const GenesisID = "CERT-00000"

var (
	// ErrNotFound is returned when no record has the requested certificate id.
	ErrNotFound = errors.New("certificate not found")

	// ErrDuplicateID is returned when a certificate id is already on the ledger.
	ErrDuplicateID = errors.New("certificate id already exists")

	// ErrPersistence wraps storage failures. The ledger is unchanged when it is returned.
	ErrPersistence = errors.New("ledger persistence failure")

	// ErrNotEnoughRecords is returned by TamperRandom when only the genesis record exists.
	ErrNotEnoughRecords = errors.New("not enough records to tamper")
)

// Record is a single certificate on the ledger.
type Record struct {
	Seq int `json:"seq"`
	canonical.IdentityFields
	PreviousHash string    `json:"previousHash"`
	Hash         string    `json:"hash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ContentValid reports whether Hash still matches the identity fields.
func (r *Record) ContentValid() bool {
	return r.Hash == canonical.Hash(r.IdentityFields)
}

// GenesisFields returns the identity of the genesis record for the given year.
func GenesisFields(year int) canonical.IdentityFields {
	return canonical.IdentityFields{
		ID:                 GenesisID,
		StudentName:        "Genesis Block",
		Course:             "System Initialization",
		IssuingInstitution: "CertGuard System",
		Grade:              "N/A",
		RollNumber:         "N/A",
		Year:               year,
	}
}

func newGenesis(now time.Time) *Record {
	f := GenesisFields(now.Year())
	return &Record{
		Seq:            0,
		IdentityFields: f,
		PreviousHash:   GenesisHash,
		Hash:           canonical.Hash(f),
		CreatedAt:      now,
	}
}

func newRecord(seq int, f canonical.IdentityFields, prevHash string, now time.Time) *Record {
	return &Record{
		Seq:            seq,
		IdentityFields: f,
		PreviousHash:   prevHash,
		Hash:           canonical.Hash(f),
		CreatedAt:      now,
	}
}
