package cache

import (
	"strings"
	"time"

	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
)

const (
	defaultAgentTTL    = 2 * time.Minute
	defaultLocationTTL = 10 * time.Minute
)

// DirectoryCache stores hot-path agent and location lookups for ingestion.
type DirectoryCache interface {
	GetAgent(name string) (directorydomain.Agent, bool)
	SetAgent(agent directorydomain.Agent)
	InvalidateAgent(name string)
	GetLocation(code string) (directorydomain.Location, bool)
	SetLocation(location directorydomain.Location)
	InvalidateLocation(code string)
}

type directoryCache struct {
	agents      Cache[string, directorydomain.Agent]
	locations   Cache[string, directorydomain.Location]
	agentTTL    time.Duration
	locationTTL time.Duration
}

// NewDirectoryCache returns an in-memory cache tuned for ingestion.
func NewDirectoryCache() DirectoryCache {
	return &directoryCache{
		agents:      NewTTLCache[string, directorydomain.Agent](),
		locations:   NewTTLCache[string, directorydomain.Location](),
		agentTTL:    defaultAgentTTL,
		locationTTL: defaultLocationTTL,
	}
}

func (c *directoryCache) GetAgent(name string) (directorydomain.Agent, bool) {
	return c.agents.Get(cacheKey(name))
}

func (c *directoryCache) SetAgent(agent directorydomain.Agent) {
	if agent.ID == 0 {
		return
	}
	c.agents.Set(cacheKey(agent.Name), agent, c.agentTTL)
}

func (c *directoryCache) InvalidateAgent(name string) {
	c.agents.Delete(cacheKey(name))
}

func (c *directoryCache) GetLocation(code string) (directorydomain.Location, bool) {
	return c.locations.Get(cacheKey(code))
}

func (c *directoryCache) SetLocation(location directorydomain.Location) {
	if location.ID == 0 {
		return
	}
	c.locations.Set(cacheKey(location.Code), location, c.locationTTL)
}

func (c *directoryCache) InvalidateLocation(code string) {
	c.locations.Delete(cacheKey(code))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
