package certledger

import "fmt"

// FailureKind classifies an integrity failure.
type FailureKind string

const (
	FailureBrokenLink      FailureKind = "broken_link"
	FailureContentMismatch FailureKind = "content_mismatch"
)

// IntegrityFailure locates one failed check.
type IntegrityFailure struct {
	Seq           int         `json:"seq"`
	CertificateID string      `json:"certificateId"`
	Kind          FailureKind `json:"kind"`
}

// IntegrityReport is the result of VerifyIntegrity. Log is human readable,
// Failures is for programmatic consumers.
type IntegrityReport struct {
	IsValid  bool               `json:"isValid"`
	Log      []string           `json:"log"`
	Failures []IntegrityFailure `json:"failures,omitempty"`
}

func emptyChainReport() *IntegrityReport {
	return &IntegrityReport{
		IsValid: true,
		Log:     []string{"Chain is empty or not initialized.", "Initialized a new genesis block."},
	}
}

// verifyChain checks every record. The expected link always advances to the
// current record's stored hash, so one tampered record yields one content
// failure and no cascade of link failures.
func verifyChain(records []*Record) *IntegrityReport {
	report := &IntegrityReport{IsValid: true}
	expected := GenesisHash

	for _, r := range records {
		report.Log = append(report.Log, fmt.Sprintf("Verifying record: %s...", r.ID))

		if r.PreviousHash != expected {
			report.IsValid = false
			report.Failures = append(report.Failures, IntegrityFailure{Seq: r.Seq, CertificateID: r.ID, Kind: FailureBrokenLink})
			report.Log = append(report.Log, fmt.Sprintf(
				"-> FAIL: Chain broken at record %s. Expected previous hash %s... but got %s...",
				r.ID, short(expected), short(r.PreviousHash)))
		} else {
			report.Log = append(report.Log, "-> OK: Previous hash link valid.")
		}

		if !r.ContentValid() {
			report.IsValid = false
			report.Failures = append(report.Failures, IntegrityFailure{Seq: r.Seq, CertificateID: r.ID, Kind: FailureContentMismatch})
			report.Log = append(report.Log, fmt.Sprintf("-> FAIL: Tampering detected at %s. Content hash mismatch.", r.ID))
		} else {
			report.Log = append(report.Log, "-> OK: Record content hash valid.")
		}

		expected = r.Hash
	}

	if report.IsValid {
		report.Log = append(report.Log, "SUCCESS: Chain integrity verified. All records are valid.")
	} else {
		report.Log = append(report.Log, "CRITICAL: Chain integrity compromised.")
	}
	return report
}

func short(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}

func tamperMessage(id string) string {
	return fmt.Sprintf("Tampered with record ID: %s", id)
}
