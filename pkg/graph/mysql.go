package graph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const mysqlScheme = "mysql://"

// Queries for the road tables. Closed edges are not part of the network.
const (
	selectNodes = `SELECT node_id, lat, lon FROM nodes`
	selectEdges = `SELECT src_node, dst_node, distance_m FROM edges WHERE closed = 0`
)

// parseMySQLLocation validates a mysql://<dsn> location and returns the
// driver DSN.
func parseMySQLLocation(location string) (string, error) {
	dsn := strings.TrimPrefix(location, mysqlScheme)
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("dsn %q names no database", cfg.FormatDSN())
	}
	return dsn, nil
}

// ReadMySQL loads the whole road network from the nodes and edges tables in
// one pass. Edges are stored directed, one row per direction.
func ReadMySQL(ctx context.Context, location string) (*Graph, error) {
	dsn, err := parseMySQLLocation(location)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	nodes, err := queryNodes(ctx, db)
	if err != nil {
		return nil, err
	}
	edges, err := queryEdges(ctx, db)
	if err != nil {
		return nil, err
	}

	return Build(nodes, edges)
}

func queryNodes(ctx context.Context, db *sql.DB) ([]RawNode, error) {
	rows, err := db.QueryContext(ctx, selectNodes)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []RawNode
	for rows.Next() {
		var n RawNode
		if err := rows.Scan(&n.ID, &n.Lat, &n.Lon); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

func queryEdges(ctx context.Context, db *sql.DB) ([]RawEdge, error) {
	rows, err := db.QueryContext(ctx, selectEdges)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []RawEdge
	for rows.Next() {
		var (
			e      RawEdge
			meters float64
		)
		if err := rows.Scan(&e.From, &e.To, &meters); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if e.Weight, err = metersToWeight(meters); err != nil {
			return nil, fmt.Errorf("%w: edge %d->%d: %v", ErrInconsistent, e.From, e.To, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return edges, nil
}
