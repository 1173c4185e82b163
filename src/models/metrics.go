package models

// MStreamMetrics represents runtime counters for the streaming pipeline.
type MStreamMetrics struct {
	TicksReceived      int64   `json:"ticks_received"`
	MessagesBroadcast  int64   `json:"messages_broadcast"`
	DroppedConnections int64   `json:"dropped_connections"`
	ActiveConnections  int     `json:"active_connections"`
	ActiveFeeds        int     `json:"active_feeds"`
	ActiveSynthesizers int     `json:"active_synthesizers"`
	ActiveEngines      int     `json:"active_engines"`
	BroadcastMeanMs    float64 `json:"broadcast_mean_ms"`
	BroadcastStdMs     float64 `json:"broadcast_std_ms"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}
