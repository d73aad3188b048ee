package decay

import "errors"

// ErrInvalidRating marks a rating outside Again..Easy. Ratings come from
// internal derivation only, so hitting this is a bug upstream, not bad data;
// callers must surface it rather than clamp.
var ErrInvalidRating = errors.New("decay: invalid rating")
