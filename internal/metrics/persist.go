package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/roelfdiedericks/relaybot/internal/logging"
	"github.com/roelfdiedericks/relaybot/internal/paths"
)

const (
	pruneMaxAge   = 7 * 24 * time.Hour
	dbOpenOptions = "?_busy_timeout=5000"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS metrics (
	path       TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Open attaches a sqlite database, creating the schema, restoring persisted
// values and pruning rows not updated within a week.
func (m *MetricsManager) Open(dbPath string) error {
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return err
	}

	db, err := sql.Open("sqlite3", dbPath+dbOpenOptions)
	if err != nil {
		return fmt.Errorf("open metrics db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("create metrics schema: %w", err)
	}

	m.dbMu.Lock()
	m.db = db
	m.dbMu.Unlock()

	loaded, err := m.load()
	if err != nil {
		L_warn("metrics: failed to load persisted data", "error", err)
	} else if loaded > 0 {
		L_info("metrics: loaded persisted data", "count", loaded)
	}

	pruned, err := m.prune(pruneMaxAge)
	if err != nil {
		L_warn("metrics: failed to prune stale data", "error", err)
	} else if pruned > 0 {
		L_info("metrics: pruned stale metrics", "count", pruned)
	}
	return nil
}

// Close performs a final save and closes the DB.
// Safe to call even if persistence was never opened.
func (m *MetricsManager) Close() error {
	if err := m.Save(); err != nil {
		L_warn("metrics: final save failed", "error", err)
	}

	m.dbMu.Lock()
	defer m.dbMu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// Save writes all metrics to the database in a single transaction
func (m *MetricsManager) Save() error {
	m.dbMu.Lock()
	defer m.dbMu.Unlock()
	if m.db == nil {
		return nil
	}

	snap := m.GetSnapshot()

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO metrics (path, type, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET type = excluded.type, data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	if err := saveEntries(stmt, now, snap.Counters, TypeCounter); err != nil {
		return err
	}
	if err := saveEntries(stmt, now, snap.Gauges, TypeGauge); err != nil {
		return err
	}
	if err := saveEntries(stmt, now, snap.Outcomes, TypeOutcome); err != nil {
		return err
	}
	if err := saveEntries(stmt, now, snap.Timings, TypeTiming); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	L_trace("metrics: saved", "counters", len(snap.Counters), "timings", len(snap.Timings))
	return nil
}

func saveEntries[T any](stmt *sql.Stmt, now int64, entries map[string]T, metricType MetricType) error {
	for path, v := range entries {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		if _, err := stmt.Exec(path, string(metricType), data, now); err != nil {
			return err
		}
	}
	return nil
}

func (m *MetricsManager) load() (int, error) {
	m.dbMu.Lock()
	db := m.db
	m.dbMu.Unlock()

	rows, err := db.Query(`SELECT path, type, data FROM metrics`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var path, metricType string
		var data []byte
		if err := rows.Scan(&path, &metricType, &data); err != nil {
			return count, err
		}
		if err := m.restore(path, MetricType(metricType), data); err != nil {
			L_warn("metrics: skipping unreadable row", "path", path, "error", err)
			continue
		}
		count++
	}
	return count, rows.Err()
}

func (m *MetricsManager) restore(path string, metricType MetricType, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch metricType {
	case TypeCounter, TypeGauge:
		var v int64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if metricType == TypeCounter {
			m.counters[path] = v
		} else {
			m.gauges[path] = v
		}
	case TypeOutcome:
		var o OutcomeMetric
		if err := json.Unmarshal(data, &o); err != nil {
			return err
		}
		if o.Outcomes == nil {
			o.Outcomes = make(map[string]int64)
		}
		m.outcomes[path] = &o
	case TypeTiming:
		var t TimingMetric
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		m.timings[path] = &t
	default:
		return fmt.Errorf("unknown metric type %q", metricType)
	}
	return nil
}

func (m *MetricsManager) prune(maxAge time.Duration) (int, error) {
	m.dbMu.Lock()
	defer m.dbMu.Unlock()

	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := m.db.Exec(`DELETE FROM metrics WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
