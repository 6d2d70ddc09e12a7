package store

import (
	"context"
	"database/sql"
)

// Dependency mirrors task_dependencies.
type Dependency struct {
	TaskID           int64
	DependsOnID      int64
	RelationshipType string
}

// AddDependency inserts a task_dependencies edge. Callers must have already
// run WouldCreateCycle and rejected self-loops; the store only enforces the
// CHECK(task_id <> depends_on_id) constraint structurally.
func (s *Store) AddDependency(ctx context.Context, tx *sql.Tx, taskID, dependsOnID int64, relationshipType string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO task_dependencies (task_id, depends_on_id, relationship_type)
		VALUES (?, ?, ?)`, taskID, dependsOnID, relationshipType)
	return classify(err, "add dependency")
}

// RemoveDependency deletes an edge. Idempotent: removing a non-existent
// edge is not an error.
func (s *Store) RemoveDependency(ctx context.Context, tx *sql.Tx, taskID, dependsOnID int64) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM task_dependencies WHERE task_id = ? AND depends_on_id = ?`, taskID, dependsOnID)
	return classify(err, "remove dependency")
}

// ListDependencies returns the prerequisite edges for one task.
func (s *Store) ListDependencies(ctx context.Context, taskID int64) ([]Dependency, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT task_id, depends_on_id, relationship_type FROM task_dependencies WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDependencies(rows)
}

// ListDependents returns the edges where taskID is the prerequisite.
func (s *Store) ListDependents(ctx context.Context, taskID int64) ([]Dependency, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT task_id, depends_on_id, relationship_type FROM task_dependencies WHERE depends_on_id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDependencies(rows)
}

// AllDependencyEdges loads the entire dependency graph, for cycle checks
// and the validator.
func (s *Store) AllDependencyEdges(ctx context.Context) ([]Dependency, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT task_id, depends_on_id, relationship_type FROM task_dependencies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDependencies(rows)
}

// CountOpenUpstream returns how many of taskID's "blocks" prerequisites are
// still non-terminal, for the deps-list "blocked by N open upstream" text.
func (s *Store) CountOpenUpstream(ctx context.Context, taskID int64) (int, error) {
	var n int
	err := s.readDB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM task_dependencies td
		JOIN tasks up ON up.id = td.depends_on_id
		JOIN status_order so ON so.status = up.status
		WHERE td.task_id = ? AND td.relationship_type = 'blocks' AND so.is_terminal = 0`, taskID).Scan(&n)
	return n, err
}

// CountDownstreamDependents returns how many tasks depend on taskID at all.
func (s *Store) CountDownstreamDependents(ctx context.Context, taskID int64) (int, error) {
	var n int
	err := s.readDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_dependencies WHERE depends_on_id = ?`, taskID).Scan(&n)
	return n, err
}

// WouldCreateCycle reports whether adding the edge taskID -> dependsOnID
// would create a cycle in the dependency graph, by DFS-ing from
// dependsOnID along existing "depends_on" edges looking for taskID. This
// is the single cycle-detection helper shared by dependency-add (spec.md
// 4.B) and the validator (spec.md 4.J).
func (s *Store) WouldCreateCycle(ctx context.Context, taskID, dependsOnID int64) (bool, []int64, error) {
	edges, err := s.AllDependencyEdges(ctx)
	if err != nil {
		return false, nil, err
	}
	adjacency := make(map[int64][]int64, len(edges))
	for _, e := range edges {
		adjacency[e.TaskID] = append(adjacency[e.TaskID], e.DependsOnID)
	}
	// Simulate the new edge.
	adjacency[taskID] = append(adjacency[taskID], dependsOnID)

	visited := map[int64]bool{}
	var path []int64
	var dfs func(n int64) []int64
	dfs = func(n int64) []int64 {
		if n == taskID && len(path) > 0 {
			return append(append([]int64{}, path...), n)
		}
		if visited[n] {
			return nil
		}
		visited[n] = true
		path = append(path, n)
		for _, next := range adjacency[n] {
			if cycle := dfs(next); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		return nil
	}

	cycle := dfs(dependsOnID)
	return cycle != nil, cycle, nil
}

// FindAnyCycle DFS-walks the whole graph looking for any cycle, for the
// validator's independent integrity sweep (it does not assume a specific
// candidate edge the way WouldCreateCycle does).
func (s *Store) FindAnyCycle(ctx context.Context) ([]int64, error) {
	edges, err := s.AllDependencyEdges(ctx)
	if err != nil {
		return nil, err
	}
	adjacency := make(map[int64][]int64, len(edges))
	nodes := map[int64]bool{}
	for _, e := range edges {
		adjacency[e.TaskID] = append(adjacency[e.TaskID], e.DependsOnID)
		nodes[e.TaskID] = true
		nodes[e.DependsOnID] = true
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[int64]int{}
	var path []int64
	var cycle []int64

	var dfs func(n int64) bool
	dfs = func(n int64) bool {
		color[n] = gray
		path = append(path, n)
		for _, next := range adjacency[n] {
			switch color[next] {
			case white:
				if dfs(next) {
					return true
				}
			case gray:
				// Found the back edge; carve the cycle out of path.
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle = append(append([]int64{}, path[start:]...), next)
				return true
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	for n := range nodes {
		if color[n] == white {
			if dfs(n) {
				return cycle, nil
			}
		}
	}
	return nil, nil
}

func scanDependencies(rows *sql.Rows) ([]Dependency, error) {
	var out []Dependency
	for rows.Next() {
		var d Dependency
		if err := rows.Scan(&d.TaskID, &d.DependsOnID, &d.RelationshipType); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
