package api

// Config holds server configuration.
type Config struct {
	Port           int
	PiecesDir      string   // Root for pieces opened by path
	AllowedOrigins []string // CORS and WebSocket origins (empty = allow all)
	Version        string   // Reported by /health

	APIKey         string // Required on mutating requests when set
	EditsPerMinute int    // Per-client budget for mutating requests (0 = unlimited)
	EditBurst      int
}
