package verification

// DefaultInstitutions are the institutions recognised out of the box.
var DefaultInstitutions = []string{"IIT", "NIT", "IIIT", "BITS", "DTU"}

// DefaultCourses are the courses recognised out of the box.
var DefaultCourses = []string{"BTech CS", "BTech DS", "BTech AI", "BTech EXTC", "BTech Mech"}

// Config controls verification policy.
type Config struct {
	// Institutions and Courses are matched case-insensitively as substrings.
	Institutions []string
	Courses      []string

	// RequireWatermark makes a verification without a document image count
	// as a failed cryptographic check instead of a neutral one.
	RequireWatermark bool

	// BatchConcurrency bounds VerifyBatch parallelism.
	BatchConcurrency int
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		Institutions:     DefaultInstitutions,
		Courses:          DefaultCourses,
		BatchConcurrency: 8,
	}
}

func (c Config) withDefaults() Config {
	if len(c.Institutions) == 0 {
		c.Institutions = DefaultInstitutions
	}
	if len(c.Courses) == 0 {
		c.Courses = DefaultCourses
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 8
	}
	return c
}
