package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"roadscout/internal/buildinfo"
)

// DebugJSON echoes build info and the effective non-secret config. Keys
// are reported as present/absent, never by value.
func (s *Server) DebugJSON(w http.ResponseWriter, _ *http.Request) {
	info := map[string]any{
		"build":    buildinfo.Info(),
		"time":     time.Now().UTC().Format(time.RFC3339),
		"sessions": s.sessions.Size(),
		"config":   s.Cfg,
		"env": map[string]any{
			"HAS_OPENWEATHER_API_KEY": s.Cfg.Providers.OpenWeatherKey != "",
			"HAS_TOMTOM_API_KEY":      s.Cfg.Providers.TomTomKey != "",
			"HAS_DATABASE_URL":        s.Cfg.Sources.DisengageDSN != "",
			"HAS_MONGO_URL":           s.Cfg.Sources.MongoURI != "",
			"HAS_REDIS_URL":           os.Getenv("REDIS_URL") != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
