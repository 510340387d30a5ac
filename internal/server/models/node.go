package models

// NearbyNode is a proximity lookup candidate.
type NearbyNode struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Capacity  int     `json:"capacity"`
	UsedPorts int     `json:"used_ports"`
	FreePorts int     `json:"free_ports"`
	Distance  float64 `json:"distance_m"`
}

// NodeStatus is one row of the precomputed propagation view.
type NodeStatus struct {
	NodeID          string `json:"node_id"`
	EffectiveStatus string `json:"effective_status"`
	IsRootCause     bool   `json:"is_root_cause"`
	Depth           int    `json:"depth"`
}

// Heartbeat is the last-seen record of an external webhook source.
type Heartbeat struct {
	Source     string `json:"source"`
	LastSeenAt string `json:"last_seen_at"`
	EventCount int64  `json:"event_count"`
}
