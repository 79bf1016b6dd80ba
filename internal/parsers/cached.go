package parsers

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheSize bounds the number of cached parse results; watch mode
// re-parses the same handful of files over and over, so a modest cache
// absorbs almost all of it.
const cacheSize = 512

// CachedParser wraps a Parser with a content-addressed LRU cache.
// Results are keyed by the SHA-256 of the content, so a file reverted
// to a previous state hits the cache even across rename cycles.
type CachedParser struct {
	inner Parser
	cache *lru.Cache[string, []Element]
}

// NewCachedParser wraps the given parser. It panics only if the cache
// size constant is invalid, which cannot happen.
func NewCachedParser(inner Parser) *CachedParser {
	cache, err := lru.New[string, []Element](cacheSize)
	if err != nil {
		panic(err)
	}
	return &CachedParser{inner: inner, cache: cache}
}

// Parse returns the cached result for identical content, delegating to
// the wrapped parser on a miss. Parse errors are never cached.
func (c *CachedParser) Parse(filePath string, content []byte) ([]Element, error) {
	sum := sha256.Sum256(content)
	key := hex.EncodeToString(sum[:])

	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	elements, err := c.inner.Parse(filePath, content)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, elements)
	return elements, nil
}

// Language returns the wrapped parser's language.
func (c *CachedParser) Language() string { return c.inner.Language() }

// Extensions returns the wrapped parser's extensions.
func (c *CachedParser) Extensions() []string { return c.inner.Extensions() }
