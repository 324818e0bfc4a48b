package catalogstore

import (
	"context"
	"database/sql"
	"fmt"
)

// RelationRow is one row of the relation-catalog (spec §6).
type RelationRow struct {
	ID            uint32
	Name          string
	Kind          string
	Owner         string
	IsShared      bool
	ColumnCount   int
	StorageMgr    string
	HasRules      bool
	HasIndexes    bool
}

// ColumnRow is one row of the column-catalog, ordered by ColumnNumber.
type ColumnRow struct {
	RelID      uint32
	Name       string
	ColumnNo   int
	TypeID     uint32
	Length     int
	Align      byte
	ByValue    bool
	IsDropped  bool
	TypeMod    int
}

// AccessMethodRow is one row of the access-method-catalog.
type AccessMethodRow struct {
	ID                   uint32
	Name                 string
	StrategyCount        int
	SupportFunctionCount int
}

// RuleEvent enumerates rule-catalog event types.
type RuleEvent string

const (
	RuleSelect RuleEvent = "SELECT"
	RuleUpdate RuleEvent = "UPDATE"
	RuleInsert RuleEvent = "INSERT"
	RuleDelete RuleEvent = "DELETE"
)

// RuleRow is one row of the rule-catalog.
type RuleRow struct {
	RuleID    uint32
	RelID     uint32
	Event     RuleEvent
	AttrNo    int
	IsInstead bool
	QualTree  []byte
	ActionTree []byte
}

// RelationByID performs an indexed lookup of the relation-catalog by id.
func (s *Store) RelationByID(ctx context.Context, id uint32) (*RelationRow, error) {
	var r RelationRow
	err := s.QueryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&r.ID, &r.Name, &r.Kind, &r.Owner, &r.IsShared, &r.ColumnCount, &r.StorageMgr, &r.HasRules, &r.HasIndexes)
	}, `SELECT id, name, kind, owner, is_shared, column_count, storage_manager, has_rules, has_indexes
	    FROM relation_catalog WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: relation %d: %w", id, err)
	}
	return &r, nil
}

// RelationByName performs an indexed lookup of the relation-catalog by name.
func (s *Store) RelationByName(ctx context.Context, name string) (*RelationRow, error) {
	var r RelationRow
	err := s.QueryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&r.ID, &r.Name, &r.Kind, &r.Owner, &r.IsShared, &r.ColumnCount, &r.StorageMgr, &r.HasRules, &r.HasIndexes)
	}, `SELECT id, name, kind, owner, is_shared, column_count, storage_manager, has_rules, has_indexes
	    FROM relation_catalog WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: relation %q: %w", name, err)
	}
	return &r, nil
}

// RelationByIDSeqScan scans the whole relation-catalog table looking for id.
// Used during bootstrap, before the catalog's own indexes are available
// (spec §4.2 build-from-catalog step 1).
func (s *Store) RelationByIDSeqScan(ctx context.Context, id uint32) (*RelationRow, error) {
	rows, err := s.QueryContext(ctx, `SELECT id, name, kind, owner, is_shared, column_count, storage_manager, has_rules, has_indexes
	    FROM relation_catalog`)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: seqscan relation_catalog: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r RelationRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &r.Owner, &r.IsShared, &r.ColumnCount, &r.StorageMgr, &r.HasRules, &r.HasIndexes); err != nil {
			return nil, fmt.Errorf("catalogstore: scan relation_catalog: %w", err)
		}
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("catalogstore: relation %d: %w", id, sql.ErrNoRows)
}

// ColumnsForRelation returns the column-catalog rows for relID, ordered by
// column number, via the column-catalog index.
func (s *Store) ColumnsForRelation(ctx context.Context, relID uint32) ([]ColumnRow, error) {
	rows, err := s.QueryContext(ctx, `SELECT rel_id, column_name, column_number, type_id, length, align, by_value, is_dropped, type_mod
	    FROM column_catalog WHERE rel_id = ? ORDER BY column_number`, relID)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: columns for %d: %w", relID, err)
	}
	return scanColumns(rows)
}

// ColumnsForRelationSeqScan is the bootstrap-mode equivalent of
// ColumnsForRelation: a full table scan filtered in Go.
func (s *Store) ColumnsForRelationSeqScan(ctx context.Context, relID uint32) ([]ColumnRow, error) {
	rows, err := s.QueryContext(ctx, `SELECT rel_id, column_name, column_number, type_id, length, align, by_value, is_dropped, type_mod
	    FROM column_catalog`)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: seqscan column_catalog: %w", err)
	}
	all, err := scanColumns(rows)
	if err != nil {
		return nil, err
	}
	var out []ColumnRow
	for _, c := range all {
		if c.RelID == relID {
			out = append(out, c)
		}
	}
	return out, nil
}

func scanColumns(rows *sql.Rows) ([]ColumnRow, error) {
	defer rows.Close()
	var out []ColumnRow
	for rows.Next() {
		var c ColumnRow
		if err := rows.Scan(&c.RelID, &c.Name, &c.ColumnNo, &c.TypeID, &c.Length, &c.Align, &c.ByValue, &c.IsDropped, &c.TypeMod); err != nil {
			return nil, fmt.Errorf("catalogstore: scan column_catalog: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AccessMethod looks up an access-method-catalog row by id.
func (s *Store) AccessMethod(ctx context.Context, id uint32) (*AccessMethodRow, error) {
	var am AccessMethodRow
	err := s.QueryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&am.ID, &am.Name, &am.StrategyCount, &am.SupportFunctionCount)
	}, `SELECT id, name, strategy_count, support_function_count FROM access_method_catalog WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: access method %d: %w", id, err)
	}
	return &am, nil
}

// RulesForRelation returns the rule-catalog rows targeting relID.
func (s *Store) RulesForRelation(ctx context.Context, relID uint32) ([]RuleRow, error) {
	rows, err := s.QueryContext(ctx, `SELECT rule_id, rel_id, event_type, attribute_number, is_instead, qual_tree, action_tree
	    FROM rule_catalog WHERE rel_id = ?`, relID)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: rules for %d: %w", relID, err)
	}
	defer rows.Close()
	var out []RuleRow
	for rows.Next() {
		var r RuleRow
		if err := rows.Scan(&r.RuleID, &r.RelID, &r.Event, &r.AttrNo, &r.IsInstead, &r.QualTree, &r.ActionTree); err != nil {
			return nil, fmt.Errorf("catalogstore: scan rule_catalog: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
