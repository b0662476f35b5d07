package engines

import (
	"crypto/md5"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

// synthCache stores synthesized utterance audio on disk, compressed
// with zstd. Keys hash the fields that determine synthesis output, so
// the same text, voice and rate always land on the same entry. Cache
// problems degrade to misses; they never fail synthesis.
type synthCache struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *log.Logger
}

func newSynthCache(dir string, logger *log.Logger) (*synthCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &synthCache{dir: dir, encoder: encoder, decoder: decoder, logger: logger}, nil
}

// cacheKey hashes the synthesis inputs into a stable file name stem.
func cacheKey(text, voice string, rate float64) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(fmt.Sprintf("%s|%s|%.2f", text, voice, rate))))
}

func (c *synthCache) path(key string) string {
	return filepath.Join(c.dir, key+".pcm.zst")
}

// get returns the cached audio for key. Unreadable entries are removed
// and reported as misses.
func (c *synthCache) get(key string) ([]byte, bool) {
	compressed, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	data, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		c.logger.Warn("dropping unreadable cache entry", "key", key, "error", err)
		os.Remove(c.path(key))
		return nil, false
	}
	return data, true
}

// put stores audio under key. The write goes through a temp file and a
// rename so a crash never leaves a truncated entry behind.
func (c *synthCache) put(key string, data []byte) {
	compressed := c.encoder.EncodeAll(data, nil)

	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
		return
	}
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		c.logger.Warn("cache write failed", "key", key, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warn("cache write failed", "key", key, "error", err)
		return
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warn("cache write failed", "key", key, "error", err)
		return
	}
	c.logger.Debug("cached synthesis",
		"key", key,
		"bytes", len(data),
		"compressed", len(compressed))
}

// size returns the total bytes the cache occupies on disk.
func (c *synthCache) size() int64 {
	var total int64
	filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func (c *synthCache) close() {
	c.encoder.Close()
	c.decoder.Close()
}
