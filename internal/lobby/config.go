package lobby

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dreamware/lobbyd/internal/fleet"
)

// Config carries every tunable for one lobby instance. All values come from
// the environment with sensible single-machine defaults, so a bare
// `./lobbyd` runs a standalone lobby with no fleet.
type Config struct {
	// ListenAddr is the address the HTTP surface binds to.
	ListenAddr string

	// Host is this machine's identity in the fleet: the value peers put in
	// a room's host field when they schedule a game here. Must match the
	// hostname part of this instance's entry in every peer's LOBBY_FLEET.
	Host string

	// FleetHosts lists the other lobby instances. Host names are derived
	// from each URL's hostname.
	FleetHosts []fleet.HostInfo

	// FleetSecret gates the fleet-internal RPC endpoints.
	FleetSecret string

	// AcceptConnections gates the connect operation. Flipping it off lets an
	// instance drain before maintenance without dropping live rooms.
	AcceptConnections bool

	// MaxRooms caps the number of simultaneously registered rooms.
	MaxRooms int

	// PortMin and PortMax bound the dedicated game-server port range,
	// inclusive.
	PortMin int
	PortMax int

	// SweepInterval is the wall-clock cadence of the expiry sweep; each sweep
	// advances the logical tick by one.
	SweepInterval time.Duration

	// TTLTicks is the inactivity window, in ticks, after which idle players
	// and rooms are removed.
	TTLTicks int64

	// MatchTimeoutTicks is how long a matchmaking bucket may wait below its
	// minimum population before it is torn down.
	MatchTimeoutTicks int64

	// RemotePollEvery is the number of sweeps between fleet inventory polls.
	RemotePollEvery int64

	// RateLimitPerIP is the public-endpoint request budget per client IP,
	// in requests per second.
	RateLimitPerIP float64

	// GameServerBin is the dedicated game-server executable the launcher
	// spawns. Empty disables local launching (hosted-only instance).
	GameServerBin string

	// PublicURL is this instance's own base URL, handed to spawned game
	// servers so they can publish keep-alives back to us.
	PublicURL string
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() *Config {
	return &Config{
		ListenAddr:        envStr("LOBBY_ADDR", ":8070"),
		Host:              envStr("LOBBY_HOST", "127.0.0.1"),
		FleetHosts:        parseFleet(envStr("LOBBY_FLEET", "")),
		FleetSecret:       envStr("LOBBY_FLEET_SECRET", ""),
		AcceptConnections: envStr("LOBBY_ACCEPT_CONNECTIONS", "true") == "true",
		MaxRooms:          envInt("LOBBY_MAX_ROOMS", 500),
		PortMin:           envInt("LOBBY_PORT_MIN", 7777),
		PortMax:           envInt("LOBBY_PORT_MAX", 7877),
		SweepInterval:     time.Duration(envInt("LOBBY_SWEEP_INTERVAL_MS", 1000)) * time.Millisecond,
		TTLTicks:          int64(envInt("LOBBY_TTL_TICKS", 60)),
		MatchTimeoutTicks: int64(envInt("LOBBY_MATCH_TIMEOUT_TICKS", 30)),
		RemotePollEvery:   int64(envInt("LOBBY_REMOTE_POLL_EVERY", 10)),
		RateLimitPerIP:    float64(envInt("LOBBY_RATE_LIMIT_PER_IP", 50)),
		GameServerBin:     envStr("LOBBY_GAMESERVER_BIN", ""),
		PublicURL:         envStr("LOBBY_PUBLIC_URL", "http://127.0.0.1:8070"),
	}
}

// parseFleet turns a comma-separated list of peer base URLs into HostInfo
// entries, deriving each host's name from the URL hostname. Malformed
// entries are skipped.
func parseFleet(raw string) []fleet.HostInfo {
	if raw == "" {
		return nil
	}
	var hosts []fleet.HostInfo
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		u, err := url.Parse(entry)
		if err != nil || u.Hostname() == "" {
			continue
		}
		hosts = append(hosts, fleet.HostInfo{Name: u.Hostname(), Addr: entry})
	}
	return hosts
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
