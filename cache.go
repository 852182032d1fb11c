/*
Copyright © 2024 the FjordForce authors.
This file is part of FjordForce.

FjordForce is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

FjordForce is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with FjordForce.  If not, see <http://www.gnu.org/licenses/>.
*/

package fjordforce

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ctessum/requestcache"
)

// DefaultCacheSize is the default number of entries held by a FrameCache.
const DefaultCacheSize = 64

// FrameCache is a FrameReader that keeps recently read frames in memory.
// Because the time axis is cyclic, every cycle reads the same frames as
// the one before, so a cache large enough to hold one cycle's worth of
// reloads removes all file access after the first cycle.
//
// Cached frames are shared between callers and must not be modified.
// Read errors are cached as well; archives are assumed not to change
// during a run.
type FrameCache struct {
	r     FrameReader
	cache *requestcache.Cache
}

type cacheRequest struct {
	info       bool
	path, v    string
	shape      [3]int
	start, end int
}

type cacheResult struct {
	info   *ArchiveInfo
	frames *Frames
	err    error
}

// NewFrameCache returns a FrameCache in front of r holding at most
// maxEntries results. If maxEntries < 1, DefaultCacheSize is used.
func NewFrameCache(r FrameReader, maxEntries int) *FrameCache {
	if maxEntries < 1 {
		maxEntries = DefaultCacheSize
	}
	c := &FrameCache{r: r}
	c.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(cacheRequest)
		if req.info {
			info, err := c.r.Info(req.path)
			return cacheResult{info: info, err: err}, nil
		}
		frames, err := c.r.ReadFrames(req.path, req.v, req.shape, req.start, req.end)
		return cacheResult{frames: frames, err: err}, nil
	}, runtime.GOMAXPROCS(-1), requestcache.Deduplicate(), requestcache.Memory(maxEntries))
	return c
}

// Info implements FrameReader.
func (c *FrameCache) Info(path string) (*ArchiveInfo, error) {
	res, err := c.get(cacheRequest{info: true, path: path}, "info|"+path)
	if err != nil {
		return nil, err
	}
	return res.info, nil
}

// ReadFrames implements FrameReader.
func (c *FrameCache) ReadFrames(path, variable string, shape [3]int, start, end int) (*Frames, error) {
	key := fmt.Sprintf("frames|%s|%s|%v|%d|%d", path, variable, shape, start, end)
	res, err := c.get(cacheRequest{path: path, v: variable, shape: shape, start: start, end: end}, key)
	if err != nil {
		return nil, err
	}
	return res.frames, nil
}

func (c *FrameCache) get(req cacheRequest, key string) (cacheResult, error) {
	result, err := c.cache.NewRequest(context.TODO(), req, key).Result()
	if err != nil {
		return cacheResult{}, err
	}
	res := result.(cacheResult)
	return res, res.err
}

// Requests returns the number of requests received by the
// deduplication layer, the memory layer, and the underlying reader,
// in that order. The miss rate is r[2]/r[0].
func (c *FrameCache) Requests() []int { return c.cache.Requests() }
