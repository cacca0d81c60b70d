/*
Copyright © 2024 the ClimTile authors.
This file is part of ClimTile.

ClimTile is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ClimTile is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ClimTile.  If not, see <http://www.gnu.org/licenses/>.
*/

package climtile

import (
	"context"
	"log"
	"sync"
)

// ChunkState describes where one chunk is in its lifecycle.
type ChunkState int

const (
	// ChunkPending means the chunk has not started yet.
	ChunkPending ChunkState = iota
	// ChunkRunning means tile workers are processing the chunk.
	ChunkRunning
	// ChunkAllSucceeded means every tile produced an artifact.
	ChunkAllSucceeded
	// ChunkPartiallyFailed means at least one tile failed.
	ChunkPartiallyFailed
)

func (s ChunkState) String() string {
	switch s {
	case ChunkPending:
		return "pending"
	case ChunkRunning:
		return "running"
	case ChunkAllSucceeded:
		return "all tiles succeeded"
	case ChunkPartiallyFailed:
		return "partially failed"
	default:
		return "unknown"
	}
}

// TileScheduler fans one chunk's tiles out over a bounded pool of tile
// workers and collects their artifacts. The zero value is usable; it
// runs one worker per tile.
type TileScheduler struct {
	// Workers is the number of concurrent tile workers. Zero means one
	// worker per tile, subject to MaxWorkers.
	Workers int

	// MaxWorkers caps the worker pool size. Zero means no cap.
	MaxWorkers int

	// KeepPartial is passed through to the tile workers; see
	// TileWorker.KeepPartial.
	KeepPartial bool

	// writeMx is shared by all workers so at most one artifact write is
	// in flight at a time.
	writeMx sync.Mutex

	mx    sync.Mutex
	state ChunkState
}

// State reports the state of the chunk most recently passed to
// RunChunk.
func (s *TileScheduler) State() ChunkState {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

func (s *TileScheduler) setState(state ChunkState) {
	s.mx.Lock()
	s.state = state
	s.mx.Unlock()
}

type tileResult struct {
	artifact TileArtifact
	err      error
}

// RunChunk processes every tile of one chunk concurrently, writing
// artifacts into dir, and returns the artifacts of the tiles that
// succeeded. It always waits for all in-flight tiles to finish before
// returning; an error from one tile does not interrupt its siblings.
// If any tiles failed, the returned error is a TileErrors holding one
// TileComputationError per failed tile, and the successful artifacts
// are still returned alongside it. If ctx expires, tiles not yet
// started are skipped, in-flight tiles are allowed to finish, and the
// context's error is returned.
func (s *TileScheduler) RunChunk(ctx context.Context, chunk *Dataset, tiles []TileSpec, cache *ReferenceCache, calc Calculator, dir string) ([]TileArtifact, error) {
	nworkers := s.Workers
	if nworkers <= 0 {
		nworkers = len(tiles)
	}
	if s.MaxWorkers > 0 && nworkers > s.MaxWorkers {
		nworkers = s.MaxWorkers
	}
	if nworkers > len(tiles) {
		nworkers = len(tiles)
	}
	s.setState(ChunkRunning)

	jobChan := make(chan TileSpec, len(tiles))
	resChan := make(chan tileResult, len(tiles))
	var wg sync.WaitGroup
	for i := 0; i < nworkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := &TileWorker{
				Calculator:  calc,
				KeepPartial: s.KeepPartial,
				Dir:         dir,
				writeMx:     &s.writeMx,
			}
			for tile := range jobChan {
				if err := ctx.Err(); err != nil {
					resChan <- tileResult{err: &TileComputationError{Tile: tile.Name, Err: err}}
					continue
				}
				log.Printf("climtile: processing tile %s", tile.Name)
				artifact, err := w.Process(ctx, chunk, tile, cache)
				resChan <- tileResult{artifact: artifact, err: err}
			}
		}()
	}
	for _, tile := range tiles {
		jobChan <- tile
	}
	close(jobChan)
	wg.Wait()
	close(resChan)

	var artifacts []TileArtifact
	var errs TileErrors
	for res := range resChan {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		artifacts = append(artifacts, res.artifact)
	}
	if len(errs) > 0 {
		s.setState(ChunkPartiallyFailed)
		return artifacts, errs
	}
	if err := ctx.Err(); err != nil {
		s.setState(ChunkPartiallyFailed)
		return artifacts, err
	}
	s.setState(ChunkAllSucceeded)
	return artifacts, nil
}
