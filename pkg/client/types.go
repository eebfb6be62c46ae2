package client

import "time"

// Fields are the identity fields of a certificate.
type Fields struct {
	ID                 string `json:"id"`
	StudentName        string `json:"studentName"`
	Course             string `json:"course"`
	IssuingInstitution string `json:"issuingInstitution"`
	Grade              string `json:"grade"`
	RollNumber         string `json:"rollNumber"`
	Year               int    `json:"year"`
}

// Record is a certificate as stored on the ledger.
type Record struct {
	Seq int `json:"seq"`
	Fields
	PreviousHash string    `json:"previousHash"`
	Hash         string    `json:"hash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IssueRequest is the payload for Issue. ImageDataURI optionally carries the
// rendered certificate to watermark.
type IssueRequest struct {
	Fields
	ImageDataURI string `json:"imageDataUri,omitempty"`
}

// IssuedCertificate is returned by Issue. Images are PNG data URIs.
type IssuedCertificate struct {
	Certificate        Record `json:"certificate"`
	QRPayload          string `json:"qrPayload"`
	QRImage            string `json:"qrImage,omitempty"`
	WatermarkedImage   string `json:"watermarkedImage,omitempty"`
	WatermarkTruncated bool   `json:"watermarkTruncated"`
}

// Preview is the hash and QR payload a certificate would be issued with.
type Preview struct {
	Fields    Fields `json:"fields"`
	Hash      string `json:"hash"`
	QRPayload string `json:"qrPayload"`
}

// Suggestion is the set of fields read from a scanned certificate.
type Suggestion struct {
	SuggestedName      string `json:"suggestedName"`
	Course             string `json:"course"`
	IssuingInstitution string `json:"issuingInstitution"`
	SuggestedID        string `json:"suggestedId"`
	Grade              string `json:"grade"`
	RollNumber         string `json:"rollNumber"`
	Year               int    `json:"year"`
}

// VerifyRequest is one certificate to verify. DocumentDataURI is optional.
type VerifyRequest struct {
	QRDataURI       string `json:"qrDataUri"`
	DocumentDataURI string `json:"documentDataUri,omitempty"`
}

// Check is the result of one verification check.
type Check struct {
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
	Summary string `json:"summary"`
}

// Details holds every check of a verdict.
type Details struct {
	DBCheck          Check `json:"dbCheck"`
	SignatureCheck   Check `json:"signatureCheck"`
	WatermarkCheck   Check `json:"watermarkCheck"`
	InstitutionCheck Check `json:"institutionCheck"`
	CourseCheck      Check `json:"courseCheck"`
}

// Verdict is the outcome of a verification.
type Verdict struct {
	Status        string  `json:"status"`
	Reason        string  `json:"reason"`
	CertificateID string  `json:"certificateId"`
	Details       Details `json:"details"`
}

// LedgerOverview is the chain length and root hash.
type LedgerOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// IntegrityFailure locates one failed ledger check.
type IntegrityFailure struct {
	Seq           int    `json:"seq"`
	CertificateID string `json:"certificateId"`
	Kind          string `json:"kind"`
}

// IntegrityReport is the result of a ledger integrity walk.
type IntegrityReport struct {
	IsValid  bool               `json:"isValid"`
	Log      []string           `json:"log"`
	Failures []IntegrityFailure `json:"failures,omitempty"`
}

// TamperResult describes the record altered by Tamper.
type TamperResult struct {
	Seq           int    `json:"seq"`
	CertificateID string `json:"certificateId"`
	Message       string `json:"message"`
}

// BlacklistEntry is one blacklisting decision.
type BlacklistEntry struct {
	ID        string     `json:"id"`
	EntityID  string     `json:"entityId"`
	Reason    string     `json:"reason"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"timestamp"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Session describes the identity behind a session token.
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LogEntry is one logged verification attempt.
type LogEntry struct {
	ID            string    `json:"id"`
	CertificateID string    `json:"certificateId"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// DailyCount is the number of verdicts per status on one day.
type DailyCount struct {
	Date           string `json:"date"`
	Valid          int    `json:"valid"`
	PartiallyValid int    `json:"partiallyValid"`
	Invalid        int    `json:"invalid"`
}

// Stats summarises the verification log.
type Stats struct {
	Total          int          `json:"total"`
	Valid          int          `json:"valid"`
	PartiallyValid int          `json:"partiallyValid"`
	Invalid        int          `json:"invalid"`
	Daily          []DailyCount `json:"daily"`
}
