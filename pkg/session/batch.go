package session

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CheckAll checks every start file of the workspace, following require
// edges, and returns the resulting snapshot. Files are distributed over a
// bounded worker pool; a shared dependency is still checked only once. The
// final Flush drains interface-change cascades, so members of a require
// cycle end up checked against each other's committed interfaces.
func (s *Session) CheckAll(ctx context.Context) (*Snapshot, error) {
	files, err := s.ws.StartFiles()
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, file := range files {
		path := s.canonical(file)
		g.Go(func() error {
			_, err := s.ensureChecked(gctx, path, nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	return s.snap.Load(), nil
}

// HasErrors reports whether any file in the snapshot carries an error-level
// diagnostic.
func (s *Snapshot) HasErrors() bool {
	for _, env := range s.envs {
		if env.Report.HasErrors() {
			return true
		}
	}
	return false
}
