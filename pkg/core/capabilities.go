package core

// Capabilities records which host APIs were found when a context started.
// Call sites branch on these flags instead of relying on swallowed failures.
type Capabilities struct {
	Storage       bool `json:"storage"`
	Scheduler     bool `json:"scheduler"`
	Notifications bool `json:"notifications"`
	Bridge        bool `json:"bridge"`
}

// AllCapabilities reports every host API as present.
func AllCapabilities() Capabilities {
	return Capabilities{Storage: true, Scheduler: true, Notifications: true, Bridge: true}
}
