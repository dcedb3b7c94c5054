package planner

// Config carries the planner's geometric thresholds. Partially set values are
// used as given; a zero Config is replaced by DefaultConfig in New.
type Config struct {
	// Object-directed candidates farther than this from the object are ignored.
	InteractionRadius float64
	// Widening band around the object's orthogonal coordinate for axis-aligned facings.
	Tolerances []float64
	// Candidates within LineGap of the best facing-line distance are kept.
	LineGap float64
	// Medium and large objects only consider candidates within SelectRadius.
	SelectRadius float64

	SmallMaxVolume   float64
	SmallMaxSurface  float64
	MediumMaxVolume  float64
	MediumMaxSurface float64

	// When nothing survives the interaction radius, fall back to the nearest
	// non-excluded candidate regardless of distance.
	RelaxRadiusOnFallback bool
}

func DefaultConfig() Config {
	return Config{
		InteractionRadius:     1.5,
		Tolerances:            []float64{0.1, 0.2, 0.3, 0.4, 0.5},
		LineGap:               0.1,
		SelectRadius:          1.0,
		SmallMaxVolume:        0.2,
		SmallMaxSurface:       0.5,
		MediumMaxVolume:       1.0,
		MediumMaxSurface:      1.0,
		RelaxRadiusOnFallback: true,
	}
}

// IsZero reports whether no field of c was set.
func (c Config) IsZero() bool {
	return c.InteractionRadius == 0 && len(c.Tolerances) == 0 && c.LineGap == 0 && c.SelectRadius == 0 &&
		c.SmallMaxVolume == 0 && c.SmallMaxSurface == 0 &&
		c.MediumMaxVolume == 0 && c.MediumMaxSurface == 0 &&
		!c.RelaxRadiusOnFallback
}

type Bucket int

const (
	BucketSmall Bucket = iota + 1
	BucketMedium
	BucketLarge
)

func (b Bucket) String() string {
	switch b {
	case BucketSmall:
		return "small"
	case BucketMedium:
		return "medium"
	case BucketLarge:
		return "large"
	default:
		return "unknown"
	}
}

// Classify buckets an object by volume and largest face. Bounds are inclusive
// and evaluated small first.
func (c Config) Classify(volume, surfaceArea float64) Bucket {
	if volume <= c.SmallMaxVolume && surfaceArea <= c.SmallMaxSurface {
		return BucketSmall
	}
	if volume <= c.MediumMaxVolume && surfaceArea <= c.MediumMaxSurface {
		return BucketMedium
	}
	return BucketLarge
}
