package canonical_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certguard/certguard/internal/canonical"
)

func sample() canonical.IdentityFields {
	return canonical.IdentityFields{
		ID:                 "CERT-1001",
		StudentName:        "Ada Lovelace",
		Course:             "BTech CS",
		IssuingInstitution: "IIT Bombay",
		Grade:              "A",
		RollNumber:         "R-17",
		Year:               2024,
	}
}

func TestCanonicalize_sortedCompact(t *testing.T) {
	b, err := canonical.Canonicalize(sample())
	require.NoError(t, err)
	want := `{"course":"BTech CS","grade":"A","id":"CERT-1001","issuingInstitution":"IIT Bombay","rollNumber":"R-17","studentName":"Ada Lovelace","year":2024}`
	assert.Equal(t, want, string(b))
}

func TestCanonicalize_noHTMLEscaping(t *testing.T) {
	f := sample()
	f.StudentName = "A <B> & C"
	b, err := canonical.Canonicalize(f)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"studentName":"A <B> & C"`)
}

func TestHash_matchesSHA256OfCanonicalBytes(t *testing.T) {
	b, err := canonical.Canonicalize(sample())
	require.NoError(t, err)
	sum := sha256.Sum256(b)

	got := canonical.Hash(sample())
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
	assert.Len(t, got, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", got)
}

func TestHash_deterministic(t *testing.T) {
	assert.Equal(t, canonical.Hash(sample()), canonical.Hash(sample()))
}

func TestHash_sensitiveToEveryField(t *testing.T) {
	base := canonical.Hash(sample())
	mutations := map[string]func(*canonical.IdentityFields){
		"id":                 func(f *canonical.IdentityFields) { f.ID += "x" },
		"studentName":        func(f *canonical.IdentityFields) { f.StudentName += " (Tampered)" },
		"course":             func(f *canonical.IdentityFields) { f.Course = "BTech AI" },
		"issuingInstitution": func(f *canonical.IdentityFields) { f.IssuingInstitution = "NIT" },
		"grade":              func(f *canonical.IdentityFields) { f.Grade = "B" },
		"rollNumber":         func(f *canonical.IdentityFields) { f.RollNumber = "R-18" },
		"year":               func(f *canonical.IdentityFields) { f.Year++ },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			f := sample()
			mutate(&f)
			assert.NotEqual(t, base, canonical.Hash(f))
		})
	}
}

func TestHashMap_keyOrderAndExtrasIgnored(t *testing.T) {
	a := map[string]any{
		"id": "CERT-1001", "studentName": "Ada Lovelace", "course": "BTech CS",
		"issuingInstitution": "IIT Bombay", "grade": "A", "rollNumber": "R-17", "year": 2024,
	}
	b := map[string]any{
		"year": float64(2024), "rollNumber": "R-17", "grade": "A", "issuingInstitution": "IIT Bombay",
		"course": "BTech CS", "studentName": "Ada Lovelace", "id": "CERT-1001",
		"watermark": "ignored", "createdAt": "2024-01-01",
	}
	assert.Equal(t, canonical.HashMap(a), canonical.HashMap(b))
	assert.Equal(t, canonical.Hash(sample()), canonical.HashMap(a))
}

func TestFromMap_missingFieldsDefault(t *testing.T) {
	f := canonical.FromMap(map[string]any{"id": "X"})
	assert.Equal(t, canonical.IdentityFields{ID: "X"}, f)

	b, err := canonical.Canonicalize(f)
	require.NoError(t, err)
	assert.Equal(t, `{"course":"","grade":"","id":"X","issuingInstitution":"","rollNumber":"","studentName":"","year":0}`, string(b))
}

func TestYear(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{2024, 2024},
		{float64(2024), 2024},
		{2024.9, 2024},
		{"2023", 2023},
		{" 2022 ", 2022},
		{"2021.0", 2021},
		{"twenty", 0},
		{nil, 0},
		{true, 0},
		{1e300, 0},
		{-1e300, 0},
		{"1e300", 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, canonical.Year(c.in), "Year(%v)", c.in)
	}
}

func TestFromMap_trimsStrings(t *testing.T) {
	f := canonical.FromMap(map[string]any{
		"id": " CERT-1001", "studentName": "Ada Lovelace ", "course": "\tBTech CS\n",
		"issuingInstitution": "IIT Bombay", "grade": "A", "rollNumber": "R-17", "year": 2024,
	})
	assert.Equal(t, sample(), f)
	assert.Equal(t, canonical.Hash(sample()), canonical.Hash(f))
}

func TestNormalize(t *testing.T) {
	f := sample()
	f.StudentName = "  Ada Lovelace  "
	f.RollNumber = "R-17 "
	assert.Equal(t, sample(), canonical.Normalize(f))
}

func TestMissing(t *testing.T) {
	assert.Empty(t, sample().Missing())

	f := sample()
	f.Grade = ""
	f.Year = 0
	assert.Equal(t, []string{"grade", "year"}, f.Missing())
}
