package resolver

import (
	"fmt"
	"net/http"

	"github.com/Phoenix-Boss/audioscape/internal/logging"
	"github.com/Phoenix-Boss/audioscape/internal/provider"
	"github.com/Phoenix-Boss/audioscape/internal/provider/deezer"
	"github.com/Phoenix-Boss/audioscape/internal/provider/itunes"
	"github.com/Phoenix-Boss/audioscape/internal/provider/musicbrainz"
	"github.com/Phoenix-Boss/audioscape/internal/provider/spotify"
)

// Credentials holds the per-source settings needed to construct clients.
type Credentials struct {
	SpotifyClientID     string
	SpotifyClientSecret string
	UserAgent           string
	MusicBrainzRPS      float64
}

// BuildProviders constructs provider clients in the given priority order.
// Spotify is skipped with a warning when its credentials are missing, so
// the result can be empty; unknown names are an error.
func BuildProviders(order []string, creds Credentials, httpClient *http.Client) ([]provider.Provider, error) {
	var providers []provider.Provider
	for _, name := range order {
		switch name {
		case "spotify":
			if creds.SpotifyClientID == "" || creds.SpotifyClientSecret == "" {
				logging.Op().Warn("spotify credentials not configured, skipping provider")
				continue
			}
			providers = append(providers, spotify.New(creds.SpotifyClientID, creds.SpotifyClientSecret, httpClient))
		case "deezer":
			providers = append(providers, deezer.New(httpClient))
		case "itunes":
			providers = append(providers, itunes.New(httpClient))
		case "musicbrainz":
			providers = append(providers, musicbrainz.New(creds.UserAgent, creds.MusicBrainzRPS, httpClient))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return providers, nil
}
