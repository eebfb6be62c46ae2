// Package canonical computes the content hash that binds a certificate's
// identity fields to its ledger record, QR signature and watermark.
//
// The hash is SHA-256 over the RFC 8785 canonical JSON encoding of exactly
// seven fields. Canonical JSON sorts keys, drops insignificant whitespace and
// formats numbers the way ECMAScript does, so the same fields always produce
// the same bytes regardless of how a caller assembled them.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Field names that participate in the content hash.
const (
	FieldID                 = "id"
	FieldStudentName        = "studentName"
	FieldCourse             = "course"
	FieldIssuingInstitution = "issuingInstitution"
	FieldGrade              = "grade"
	FieldRollNumber         = "rollNumber"
	FieldYear               = "year"
)

// IdentityFields is the hashed content of a certificate.
type IdentityFields struct {
	ID                 string `json:"id"`
	StudentName        string `json:"studentName"`
	Course             string `json:"course"`
	IssuingInstitution string `json:"issuingInstitution"`
	Grade              string `json:"grade"`
	RollNumber         string `json:"rollNumber"`
	Year               int    `json:"year"`
}

// Hash returns the lowercase hex SHA-256 of the canonical encoding of f.
func Hash(f IdentityFields) string {
	b, err := Canonicalize(f)
	if err != nil {
		// Strings and an int always marshal; a failure here is a programming error.
		panic(fmt.Sprintf("canonical: encode identity fields: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashMap normalises m with FromMap and hashes the result. Keys outside the
// identity set are ignored.
func HashMap(m map[string]any) string {
	return Hash(FromMap(m))
}

// Canonicalize returns the RFC 8785 encoding of the seven identity fields.
func Canonicalize(f IdentityFields) ([]byte, error) {
	raw, err := json.Marshal(map[string]any{
		FieldID:                 f.ID,
		FieldStudentName:        f.StudentName,
		FieldCourse:             f.Course,
		FieldIssuingInstitution: f.IssuingInstitution,
		FieldGrade:              f.Grade,
		FieldRollNumber:         f.RollNumber,
		FieldYear:               f.Year,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs transform: %w", err)
	}
	return out, nil
}

// Missing returns the names of required identity fields that are empty.
// Year is required to be non-zero.
func (f IdentityFields) Missing() []string {
	var missing []string
	check := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	check(FieldID, f.ID)
	check(FieldStudentName, f.StudentName)
	check(FieldCourse, f.Course)
	check(FieldIssuingInstitution, f.IssuingInstitution)
	check(FieldGrade, f.Grade)
	check(FieldRollNumber, f.RollNumber)
	if f.Year == 0 {
		missing = append(missing, FieldYear)
	}
	return missing
}
