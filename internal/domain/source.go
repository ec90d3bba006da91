package domain

// SourceTag identifies where an oracle sample came from.
type SourceTag string

const (
	SourceLive     SourceTag = "LIVE"
	SourceFallback SourceTag = "FALLBACK"
	SourceCached   SourceTag = "CACHED"
)

// String returns the string representation of SourceTag.
func (s SourceTag) String() string {
	return string(s)
}

// IsValid checks if the source tag is a valid value.
func (s SourceTag) IsValid() bool {
	return s == SourceLive || s == SourceFallback || s == SourceCached
}
