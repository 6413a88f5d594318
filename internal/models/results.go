package models

// DeleteResult summarizes a cascading project deletion
type DeleteResult struct {
	DeletedApplicationCount int `json:"deleted_application_count"`
	ScrubbedWishlistCount   int `json:"scrubbed_wishlist_count"`
}

// SweepResult summarizes one deadline sweep
type SweepResult struct {
	Checked      int `json:"checked"`
	UpdatedCount int `json:"updated_count"`
	Skipped      int `json:"skipped"` // unparsable deadlines or projects deleted mid-sweep
	Failed       int `json:"failed"`
}

// ReconcileResult summarizes one mirror reconciliation pass
type ReconcileResult struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}
