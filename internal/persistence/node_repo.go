package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"meshbridge/internal/domain"
)

type NodeRepo struct {
	db *sql.DB
}

func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

func (r *NodeRepo) Upsert(ctx context.Context, n domain.Node) error {
	var battery any
	if n.BatteryLevel > 0 {
		battery = int64(n.BatteryLevel)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nodes(node_num, long_name, short_name, battery_level, endpoint_id, last_heard_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			long_name = excluded.long_name,
			short_name = excluded.short_name,
			battery_level = excluded.battery_level,
			endpoint_id = excluded.endpoint_id,
			last_heard_at = excluded.last_heard_at,
			updated_at = excluded.updated_at
	`, int64(n.Num), n.LongName, n.ShortName, battery, n.EndpointID, toUnixMillis(n.LastHeardAt), toUnixMillis(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

func (r *NodeRepo) ListSortedByLastHeard(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_num, long_name, short_name, battery_level, endpoint_id, last_heard_at, updated_at
		FROM nodes
		ORDER BY last_heard_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []domain.Node
	for rows.Next() {
		var (
			n       domain.Node
			num     int64
			battery sql.NullInt64
			heardMs int64
			updMs   int64
		)
		if err := rows.Scan(&num, &n.LongName, &n.ShortName, &battery, &n.EndpointID, &heardMs, &updMs); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Num = uint32(num)
		if battery.Valid {
			n.BatteryLevel = int(battery.Int64)
		}
		n.LastHeardAt = fromUnixMillis(heardMs)
		n.UpdatedAt = fromUnixMillis(updMs)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return out, nil
}
