package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"pyrothor/core"
	"pyrothor/metrics"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Table names. The three tables are peers: records reference each other by id
// only, and no upsert ever spans more than one table.
const (
	tableRules        = "rules"
	tableRuleMetadata = "rule_metadata"
	tableThreatIntel  = "threat_intel"
)

// opTimeout bounds every individual store call.
const opTimeout = 5 * time.Second

// RuleStore is the embedded store for YARA rules, rule metadata and threat
// intel indicators. Every mutating call commits as one transaction; every
// read observes the latest committed state at call time. There is no cache
// layer in front of the database.
type RuleStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// Open opens (or creates) the store at dbPath and ensures the three tables
// exist. Reopening an existing store preserves its contents.
func Open(dbPath string, logger *zap.SugaredLogger) (*RuleStore, error) {
	sqlite, err := NewSQLite(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open rule store: %w", err)
	}

	store := &RuleStore{sqlite: sqlite, logger: logger}
	if err := store.ensureTables(); err != nil {
		sqlite.Close()
		return nil, fmt.Errorf("open rule store: %w", err)
	}

	return store, nil
}

// ensureTables creates the three record tables if they don't exist. Each is
// an opaque keyed payload table; the record schema lives in the msgpack
// encoding, not in SQL columns.
func (s *RuleStore) ensureTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		id   TEXT PRIMARY KEY,
		data BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rule_metadata (
		id   TEXT PRIMARY KEY,
		data BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS threat_intel (
		id   TEXT PRIMARY KEY,
		data BLOB NOT NULL
	);
	`

	if _, err := s.sqlite.WriteDB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create store tables: %w", err)
	}

	s.logger.Debug("store tables ensured")
	return nil
}

// Path returns the database file path.
func (s *RuleStore) Path() string {
	return s.sqlite.Path
}

// Close closes the underlying database.
func (s *RuleStore) Close() error {
	return s.sqlite.Close()
}

func (s *RuleStore) upsert(ctx context.Context, table, id string, record any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record %s: %w", table, id, err)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data",
		table,
	)
	if _, err := s.sqlite.WriteDB.ExecContext(ctx, query, id, data); err != nil {
		return fmt.Errorf("upsert %s record %s: %w", table, id, err)
	}

	metrics.StoreOperations.WithLabelValues("put_" + table).Inc()
	return nil
}

func (s *RuleStore) get(ctx context.Context, table, id string, record any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table)

	var data []byte
	err := s.sqlite.ReadDB.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s record %s: %w", table, id, err)
	}

	if err := msgpack.Unmarshal(data, record); err != nil {
		return fmt.Errorf("decode %s record %s: %w", table, id, err)
	}
	return nil
}

func (s *RuleStore) delete(ctx context.Context, table, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	res, err := s.sqlite.WriteDB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete %s record %s: %w", table, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	metrics.StoreOperations.WithLabelValues("delete_" + table).Inc()
	return nil
}

// =============================================================================
// Rules
// =============================================================================

// PutRule inserts or replaces a rule. The write is a single atomic statement
// against the rules table only; metadata for the same rule id is always a
// separate transaction.
func (s *RuleStore) PutRule(ctx context.Context, rule *core.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := s.upsert(ctx, tableRules, rule.ID, rule); err != nil {
		return err
	}

	s.logger.Debugw("rule stored", "rule_id", rule.ID, "name", rule.Name)
	return nil
}

// GetRule retrieves a rule by id, or ErrNotFound.
func (s *RuleStore) GetRule(ctx context.Context, id string) (*core.Rule, error) {
	var rule core.Rule
	if err := s.get(ctx, tableRules, id, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns a fresh snapshot of all rules. The result is unordered
// and reflects the committed state at call time.
func (s *RuleStore) ListRules(ctx context.Context) ([]core.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, "SELECT id, data FROM rules")
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		var rule core.Rule
		if err := msgpack.Unmarshal(data, &rule); err != nil {
			return nil, fmt.Errorf("decode rules record %s: %w", id, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// DeleteRule removes a rule by id, or ErrNotFound.
func (s *RuleStore) DeleteRule(ctx context.Context, id string) error {
	return s.delete(ctx, tableRules, id)
}

// =============================================================================
// Rule metadata
// =============================================================================

// PutMetadata inserts or replaces metadata for a rule id. The metadata table
// has no enforced link to the rules table: metadata may exist for ids with no
// stored rule.
func (s *RuleStore) PutMetadata(ctx context.Context, m *core.RuleMetadata) error {
	if m.RuleID == "" {
		return fmt.Errorf("metadata rule_id is required")
	}

	if err := s.upsert(ctx, tableRuleMetadata, m.RuleID, m); err != nil {
		return err
	}

	s.logger.Debugw("rule metadata stored", "rule_id", m.RuleID)
	return nil
}

// GetMetadata retrieves metadata by rule id, or ErrNotFound.
func (s *RuleStore) GetMetadata(ctx context.Context, ruleID string) (*core.RuleMetadata, error) {
	var m core.RuleMetadata
	if err := s.get(ctx, tableRuleMetadata, ruleID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// =============================================================================
// Threat intel indicators
// =============================================================================

// PutIndicator inserts or replaces an indicator. Non-finite confidence values
// are rejected with ErrInvalidConfidence so the ranking order stays defined.
func (s *RuleStore) PutIndicator(ctx context.Context, ind *core.Indicator) error {
	if math.IsNaN(ind.Confidence) || math.IsInf(ind.Confidence, 0) {
		return fmt.Errorf("indicator %s: %w", ind.ID, ErrInvalidConfidence)
	}
	if err := ind.Validate(); err != nil {
		return fmt.Errorf("indicator validation failed: %w", err)
	}

	if err := s.upsert(ctx, tableThreatIntel, ind.ID, ind); err != nil {
		return err
	}

	s.logger.Debugw("indicator stored",
		"indicator_id", ind.ID,
		"type", ind.Type,
		"confidence", ind.Confidence,
	)
	return nil
}

// GetIndicator retrieves an indicator by id, or ErrNotFound.
func (s *RuleStore) GetIndicator(ctx context.Context, id string) (*core.Indicator, error) {
	var ind core.Indicator
	if err := s.get(ctx, tableThreatIntel, id, &ind); err != nil {
		return nil, err
	}
	return &ind, nil
}

// DeleteIndicator removes an indicator by id, or ErrNotFound.
func (s *RuleStore) DeleteIndicator(ctx context.Context, id string) error {
	return s.delete(ctx, tableThreatIntel, id)
}

// listIndicators loads and decodes every indicator using the given querier,
// so it works both on the read pool and inside a write transaction.
func listIndicators(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}) ([]core.Indicator, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, data FROM threat_intel")
	if err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	defer rows.Close()

	var indicators []core.Indicator
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("list indicators: %w", err)
		}
		var ind core.Indicator
		if err := msgpack.Unmarshal(data, &ind); err != nil {
			return nil, fmt.Errorf("decode threat_intel record %s: %w", id, err)
		}
		indicators = append(indicators, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	return indicators, nil
}

// FindIndicatorsByValue returns all indicators whose literal value contains
// the given substring.
func (s *RuleStore) FindIndicatorsByValue(ctx context.Context, substring string) ([]core.Indicator, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	all, err := listIndicators(ctx, s.sqlite.ReadDB)
	if err != nil {
		return nil, err
	}

	var matched []core.Indicator
	for _, ind := range all {
		if strings.Contains(ind.Value, substring) {
			matched = append(matched, ind)
		}
	}
	return matched, nil
}

// RankByConfidence returns indicators with confidence >= minConfidence,
// sorted by confidence descending with ties broken by id ascending. A stored
// non-finite confidence (possible only for records written by older builds)
// fails the call rather than producing an undefined order.
func (s *RuleStore) RankByConfidence(ctx context.Context, minConfidence float64) ([]core.Indicator, error) {
	if math.IsNaN(minConfidence) {
		return nil, fmt.Errorf("minimum confidence: %w", ErrInvalidConfidence)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	all, err := listIndicators(ctx, s.sqlite.ReadDB)
	if err != nil {
		return nil, err
	}

	var ranked []core.Indicator
	for _, ind := range all {
		if math.IsNaN(ind.Confidence) || math.IsInf(ind.Confidence, 0) {
			return nil, fmt.Errorf("indicator %s: %w", ind.ID, ErrInvalidConfidence)
		}
		if ind.Confidence >= minConfidence {
			ranked = append(ranked, ind)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked, nil
}

// PurgeIndicatorsOlderThan removes, in one transaction, every indicator whose
// last_seen is strictly before now minus the given number of days. Returns
// the number of indicators removed.
func (s *RuleStore) PurgeIndicatorsOlderThan(ctx context.Context, days int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -days)

	tx, err := s.sqlite.WriteDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("purge indicators: %w", err)
	}
	defer tx.Rollback()

	all, err := listIndicators(ctx, tx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, ind := range all {
		if ind.LastSeen.Before(cutoff) {
			if _, err := tx.ExecContext(ctx, "DELETE FROM threat_intel WHERE id = ?", ind.ID); err != nil {
				return 0, fmt.Errorf("purge indicator %s: %w", ind.ID, err)
			}
			removed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("purge indicators: %w", err)
	}

	metrics.IndicatorsPurged.Add(float64(removed))
	s.logger.Infow("purged stale indicators", "removed", removed, "older_than_days", days)
	return removed, nil
}

// =============================================================================
// Stats
// =============================================================================

// StoreStats reports per-table counts. ComputedAt is the moment the counts
// were taken; nothing here is persisted.
type StoreStats struct {
	RuleCount      int64     `json:"rule_count"`
	MetadataCount  int64     `json:"metadata_count"`
	IndicatorCount int64     `json:"indicator_count"`
	Path           string    `json:"path"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Stats returns the current per-table record counts.
func (s *RuleStore) Stats(ctx context.Context) (*StoreStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	stats := &StoreStats{
		Path:       s.sqlite.Path,
		ComputedAt: time.Now().UTC(),
	}

	counts := []struct {
		table string
		dst   *int64
	}{
		{tableRules, &stats.RuleCount},
		{tableRuleMetadata, &stats.MetadataCount},
		{tableThreatIntel, &stats.IndicatorCount},
	}
	for _, c := range counts {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table)
		if err := s.sqlite.ReadDB.QueryRowContext(ctx, query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	return stats, nil
}
