package canonical

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FromMap converts loosely typed input (a decoded JSON form, an OCR
// suggestion) into normalised IdentityFields. Absent string fields become "",
// numbers in string positions are formatted, and year is coerced with Year.
func FromMap(m map[string]any) IdentityFields {
	return Normalize(IdentityFields{
		ID:                 str(m[FieldID]),
		StudentName:        str(m[FieldStudentName]),
		Course:             str(m[FieldCourse]),
		IssuingInstitution: str(m[FieldIssuingInstitution]),
		Grade:              str(m[FieldGrade]),
		RollNumber:         str(m[FieldRollNumber]),
		Year:               Year(m[FieldYear]),
	})
}

// Normalize trims surrounding whitespace from every string field. Every
// hash computed for a preview or an issued record goes through it.
func Normalize(f IdentityFields) IdentityFields {
	f.ID = strings.TrimSpace(f.ID)
	f.StudentName = strings.TrimSpace(f.StudentName)
	f.Course = strings.TrimSpace(f.Course)
	f.IssuingInstitution = strings.TrimSpace(f.IssuingInstitution)
	f.Grade = strings.TrimSpace(f.Grade)
	f.RollNumber = strings.TrimSpace(f.RollNumber)
	return f
}

// Year coerces v to an integer year. Floats are truncated, numeric strings are
// parsed, and anything unusable yields 0.
func Year(v any) int {
	switch y := v.(type) {
	case int:
		return y
	case int32:
		return int(y)
	case int64:
		return int(y)
	case float32:
		return floatYear(float64(y))
	case float64:
		return floatYear(y)
	case json.Number:
		if i, err := y.Int64(); err == nil {
			return int(i)
		}
		if f, err := y.Float64(); err == nil {
			return floatYear(f)
		}
	case string:
		s := strings.TrimSpace(y)
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatYear(f)
		}
	}
	return 0
}

func floatYear(f float64) int {
	if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0
	}
	return int(math.Trunc(f))
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}
