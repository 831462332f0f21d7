package world

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// Server identifies a game world from its endpoint.
type Server struct {
	World  string // e.g. "nl12"
	Market string // registrable domain, e.g. "tribalwars.nl"
	Base   string // scheme://host/
}

// ParseServer derives the world id and market domain from a game endpoint
// such as https://nl12.tribalwars.nl/game.php?village=1.
func ParseServer(endpoint string) (Server, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return Server{}, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return Server{}, fmt.Errorf("endpoint %q has no host", endpoint)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(u.Hostname())
	dn, err := publicsuffix.Parse(host)
	if err != nil {
		return Server{}, fmt.Errorf("endpoint host %q: %w", host, err)
	}
	if dn.TRD == "" {
		return Server{}, fmt.Errorf("endpoint host %q carries no world subdomain", host)
	}
	world := dn.TRD
	if i := strings.LastIndex(world, "."); i >= 0 {
		world = world[i+1:]
	}
	return Server{
		World:  world,
		Market: dn.SLD + "." + dn.TLD,
		Base:   scheme + "://" + u.Host + "/",
	}, nil
}
