package transcript

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Target is one named attribution window competing for events during a
// multi-file sweep (a session, a skill run, a criterion).
type Target struct {
	Name   string
	Window Window
}

// RouteMany reads every file in paths at most once and routes each
// deduplicated request to the first Target (in target order) whose
// window contains it, per spec.md 4.E's "O(files) read passes, not
// O(files × sessions)" requirement. Files are parsed concurrently since
// each is read independently; routing itself is deterministic regardless
// of file completion order because target priority only depends on
// target order, not on which file the request came from.
func RouteMany(ctx context.Context, paths []string, targets []Target) (map[string][]Request, error) {
	perFile := make([][]Request, len(paths))

	var mu sync.Mutex
	seen := make(map[string]bool)

	g, _ := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			f, err := openAndDedup(path, &mu, seen)
			if err != nil {
				return err
			}
			perFile[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]Request, len(targets))
	for _, reqs := range perFile {
		for _, req := range reqs {
			for _, t := range targets {
				if t.Window.Contains(req.Timestamp) {
					out[t.Name] = append(out[t.Name], req)
					break
				}
			}
		}
	}
	return out, nil
}

// openAndDedup parses one file (its own streaming-chunk requestIds
// deduplicated locally) then drops any requestId already claimed by
// another file in this job, guarding the shared set with mu since files
// parse concurrently.
func openAndDedup(path string, mu *sync.Mutex, globalSeen map[string]bool) ([]Request, error) {
	reqs, err := parseFileInto(path, Window{}, make(map[string]bool))
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	out := reqs[:0]
	for _, req := range reqs {
		if globalSeen[req.RequestID] {
			continue
		}
		globalSeen[req.RequestID] = true
		out = append(out, req)
	}
	return out, nil
}
