package models

// EffectiveType approximates the quality of the current network link.
type EffectiveType string

const (
	EffectiveTypeSlow2G  EffectiveType = "slow-2g"
	EffectiveType2G      EffectiveType = "2g"
	EffectiveType3G      EffectiveType = "3g"
	EffectiveType4G      EffectiveType = "4g"
	EffectiveTypeUnknown EffectiveType = "unknown"
)

// ConnectivitySample is one observation of the platform's connectivity.
// Samples are ephemeral; they are recomputed on every connectivity change
// and never persisted.
type ConnectivitySample struct {
	IsOnline      bool          `json:"is_online"`
	EffectiveType EffectiveType `json:"effective_type"`
}

// IsSlowConnection reports whether the sampled link is slow enough that
// callers may want to defer heavy transfers. Unknown link quality never
// counts as slow.
func (s ConnectivitySample) IsSlowConnection() bool {
	return s.EffectiveType == EffectiveTypeSlow2G || s.EffectiveType == EffectiveType2G
}
