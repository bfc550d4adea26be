package repository

import (
	"context"
	"fmt"

	"irrigation/pkg/domain"
)

const treeColumns = `tree_id, plot_id, age_years, species_id, base_requirement`

// InsertTree stores t under plotID and returns the generated id.
func InsertTree(ctx context.Context, c Conn, plotID int64, t domain.Tree) (int64, error) {
	id, err := insert(ctx, c,
		`INSERT INTO tree (plot_id, age_years, species_id, base_requirement) VALUES (?, ?, ?, ?)`,
		"tree_id", plotID, t.AgeYears, t.SpeciesID, t.BaseRequirement)
	if err != nil {
		return 0, fmt.Errorf("insert tree: %w", err)
	}
	return id, nil
}

// GetTree loads a tree or returns a NotFoundError.
func GetTree(ctx context.Context, c Conn, id int64) (domain.Tree, error) {
	var t domain.Tree
	if err := getOne(ctx, c, &t, domain.EntityTree, id,
		`SELECT `+treeColumns+` FROM tree WHERE tree_id = ?`, id); err != nil {
		return domain.Tree{}, err
	}
	return t, nil
}

// ListTreesByPlot returns the trees of a plot ordered by id.
func ListTreesByPlot(ctx context.Context, c Conn, plotID int64) ([]domain.Tree, error) {
	var trees []domain.Tree
	if err := c.SelectContext(ctx, &trees, c.Rebind(`SELECT `+treeColumns+` FROM tree WHERE plot_id = ? ORDER BY tree_id`), plotID); err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	return trees, nil
}

// CountTreesInPlot counts how many of ids currently belong to plotID.
func CountTreesInPlot(ctx context.Context, c Conn, plotID int64, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := in(c, `SELECT COUNT(*) FROM tree WHERE plot_id = ? AND tree_id IN (?)`, plotID, ids)
	if err != nil {
		return 0, fmt.Errorf("build tree count: %w", err)
	}
	var n int
	if err := c.GetContext(ctx, &n, q, args...); err != nil {
		return 0, fmt.Errorf("count trees: %w", err)
	}
	return n, nil
}

// MoveTrees reassigns ids from one plot to another and returns the number of
// rows moved. Only trees currently on from are touched.
func MoveTrees(ctx context.Context, c Conn, from, to int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := in(c, `UPDATE tree SET plot_id = ? WHERE plot_id = ? AND tree_id IN (?)`, to, from, ids)
	if err != nil {
		return 0, fmt.Errorf("build tree move: %w", err)
	}
	res, err := c.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("move trees: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read affected rows: %w", err)
	}
	return n, nil
}

// DeleteTree removes one tree.
func DeleteTree(ctx context.Context, c Conn, id int64) (bool, error) {
	n, err := exec(ctx, c, `DELETE FROM tree WHERE tree_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete tree: %w", err)
	}
	return n > 0, nil
}

// DeleteTreesByPlot removes every tree of a plot.
func DeleteTreesByPlot(ctx context.Context, c Conn, plotID int64) (int64, error) {
	n, err := exec(ctx, c, `DELETE FROM tree WHERE plot_id = ?`, plotID)
	if err != nil {
		return 0, fmt.Errorf("delete trees: %w", err)
	}
	return n, nil
}
