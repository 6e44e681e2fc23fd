package models

// MaskKind identifies which anatomical structure a binary mask segments.
type MaskKind string

const (
	// Cord marks spinal-cord tissue. Cord masks are resampled with
	// nearest-neighbor interpolation so they stay strictly binary.
	Cord MaskKind = "cord"

	// Lesion marks lesion tissue. Lesion masks are resampled with
	// trilinear interpolation and later clipped to the registered cord.
	Lesion MaskKind = "lesion"
)

// MaskInstance is a single native-space binary segmentation volume,
// identified by the file it came from. The volume itself is loaded
// lazily by the pipeline; the instance only carries identity.
type MaskInstance struct {
	// Path is the absolute path of the segmentation file
	Path string

	// Kind is the structure this mask segments
	Kind MaskKind
}

// TransformRef points at the warp-field file that maps the associated
// mask's native space into template space. Exactly one transform must
// resolve per mask instance; resolution is the matcher's job.
type TransformRef struct {
	// Path is the absolute path of the transform file
	Path string
}

// MatchedPair binds one segmentation file to its uniquely resolved
// transform. Pairs are the unit of work handed to the resampler.
type MatchedPair struct {
	Mask      MaskInstance
	Transform TransformRef
}

// Subject is one cohort member: an identifier plus the matched
// segmentation/transform pairs for each mask kind. Subjects are built
// by the matcher, never mutated afterwards, and discarded once their
// contribution has been folded into the cohort sums.
type Subject struct {
	// ID is the subject identifier from the subject list
	ID string

	// Dir is the directory holding the subject's native-space files
	Dir string

	// Cord and Lesion hold the matched pairs per mask kind.
	// The matcher guarantees both are non-empty.
	Cord   []MatchedPair
	Lesion []MatchedPair
}
