package agent

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ActionCache remembers tool results within one turn so that a model repeating
// the same action and input gets the earlier observation without a second call.
type ActionCache struct {
	results map[uint64]string
	repeats map[uint64]int
}

func NewActionCache() *ActionCache {
	return &ActionCache{
		results: make(map[uint64]string),
		repeats: make(map[uint64]int),
	}
}

func actionKey(tool, input string) uint64 {
	normalized := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	return xxhash.Sum64String(tool + "\x00" + normalized)
}

// Get returns the cached observation and counts the repeat.
func (c *ActionCache) Get(tool, input string) (string, bool) {
	key := actionKey(tool, input)
	obs, ok := c.results[key]
	if ok {
		c.repeats[key]++
	}
	return obs, ok
}

// Add records a successful observation. Callers only add results of tool
// calls that returned without error so a transient failure can be retried.
func (c *ActionCache) Add(tool, input, observation string) {
	c.results[actionKey(tool, input)] = observation
}

func (c *ActionCache) Repeats(tool, input string) int {
	return c.repeats[actionKey(tool, input)]
}
