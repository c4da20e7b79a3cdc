// Package model is an in-memory workbook implementing the dispatcher and
// change recording contracts of the revision log.
//
// The state is a tree of map[string]any and []any holding only JSON values,
// so that an exported workbook imports back to an identical tree:
//
//	sheets/<id>/name
//	sheets/<id>/cells/<col:row>      content
//	sheets/<id>/formats/<col:row>    style
//	sheets/<id>/sizes/COL|ROW/<i>    size
//	sheets/<id>/merges/<A1 zone>     zone
//	sheets/<id>/figures/<id>         figure
//	sheets/<id>/charts/<id>          definition
package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/revision"
)

// Workbook is not safe for concurrent use.
type Workbook struct {
	root      map[string]any
	recording bool
	changes   []revision.Change
}

func New() *Workbook {
	return &Workbook{root: map[string]any{"sheets": map[string]any{}}}
}

// Import builds a workbook from an exported state.
func Import(data []byte) (*Workbook, error) {
	root := map[string]any{}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("import workbook: %w", err)
	}
	if _, ok := root["sheets"].(map[string]any); !ok {
		root["sheets"] = map[string]any{}
	}
	return &Workbook{root: root}, nil
}

// Export encodes the state. Keys are sorted, so equal states export to
// equal bytes.
func (w *Workbook) Export() ([]byte, error) {
	return json.Marshal(w.root)
}

// RecordChanges returns every mutation performed by fn, in order.
func (w *Workbook) RecordChanges(fn func()) []revision.Change {
	w.recording, w.changes = true, nil
	defer func() { w.recording, w.changes = false, nil }()
	fn()
	return w.changes
}

// Sheets returns the sheet ids ordered by position, then id.
func (w *Workbook) Sheets() []string {
	sheets := w.sheets()
	ids := slices.Sorted(maps.Keys(sheets))
	slices.SortStableFunc(ids, func(a, b string) int {
		return int(number(sheets[a].(map[string]any)["position"]) - number(sheets[b].(map[string]any)["position"]))
	})
	return ids
}

func (w *Workbook) Cell(sheetID string, col, row int) string {
	content, _ := w.lookup(sheetID, "cells", cellKey(col, row)).(string)
	return content
}

func (w *Workbook) Style(sheetID string, col, row int) map[string]string {
	style, _ := w.lookup(sheetID, "formats", cellKey(col, row)).(map[string]any)
	if style == nil {
		return nil
	}
	out := make(map[string]string, len(style))
	for k, v := range style {
		out[k], _ = v.(string)
	}
	return out
}

func (w *Workbook) Size(sheetID string, dimension command.Dimension, index int) float64 {
	return number(w.lookup(sheetID, "sizes", string(dimension), strconv.Itoa(index)))
}

// Merges returns the merged zones of a sheet in A1 order.
func (w *Workbook) Merges(sheetID string) []command.Zone {
	merges, _ := w.lookup(sheetID, "merges").(map[string]any)
	out := make([]command.Zone, 0, len(merges))
	for _, key := range slices.Sorted(maps.Keys(merges)) {
		out = append(out, decodeZone(merges[key]))
	}
	return out
}

func (w *Workbook) Figure(sheetID, figureID string) (command.Figure, bool) {
	raw, ok := w.lookup(sheetID, "figures", figureID).(map[string]any)
	if !ok {
		return command.Figure{}, false
	}
	var figure command.Figure
	fromValue(raw, &figure)
	return figure, true
}

func (w *Workbook) Chart(sheetID, chartID string) (command.ChartDefinition, bool) {
	raw, ok := w.lookup(sheetID, "charts", chartID).(map[string]any)
	if !ok {
		return command.ChartDefinition{}, false
	}
	var def command.ChartDefinition
	fromValue(raw, &def)
	return def, true
}

func (w *Workbook) sheets() map[string]any {
	return w.root["sheets"].(map[string]any)
}

func (w *Workbook) sheet(id string) (map[string]any, bool) {
	s, ok := w.sheets()[id].(map[string]any)
	return s, ok
}

func (w *Workbook) lookup(sheetID string, path ...string) any {
	var current any = w.sheets()[sheetID]
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// set writes value at sheets/<sheetID>/<path> and records the change. A nil
// value removes the field.
func (w *Workbook) set(sheetID string, value any, path ...string) {
	full := make([]any, 0, len(path)+2)
	full = append(full, "sheets", sheetID)
	for _, p := range path {
		full = append(full, p)
	}
	var before any
	if len(path) == 0 {
		before = w.sheets()[sheetID]
	} else {
		before = w.lookup(sheetID, path...)
	}
	if before == nil && value == nil {
		return
	}
	change := revision.Change{Root: w.root, Path: full, Before: before, After: value}
	revision.ApplyChange(change, revision.After)
	if w.recording {
		w.changes = append(w.changes, change)
	}
}

func cellKey(col, row int) string {
	return strconv.Itoa(col) + ":" + strconv.Itoa(row)
}

func parseCellKey(key string) (col, row int, ok bool) {
	c, r, found := strings.Cut(key, ":")
	if !found {
		return 0, 0, false
	}
	col, errCol := strconv.Atoi(c)
	row, errRow := strconv.Atoi(r)
	return col, row, errCol == nil && errRow == nil
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// toValue converts v to its JSON tree so that the state never holds Go structs.
func toValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err = json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func fromValue(v any, target any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, target)
}

func decodeZone(v any) command.Zone {
	var z command.Zone
	fromValue(v, &z)
	return z
}

// moveKeys rewrites the keys of the map at path with move. Entries for which
// move reports false are removed. Old keys are cleared before new keys are
// written so that shifted entries never overwrite each other.
func (w *Workbook) moveKeys(sheetID string, move func(key string) (string, bool), path ...string) {
	entries, _ := w.lookup(sheetID, path...).(map[string]any)
	type moved struct {
		key   string
		value any
	}
	var pending []moved
	for _, key := range slices.Sorted(maps.Keys(entries)) {
		next, keep := move(key)
		if keep && next == key {
			continue
		}
		value := entries[key]
		w.set(sheetID, nil, append(slices.Clone(path), key)...)
		if keep {
			pending = append(pending, moved{key: next, value: value})
		}
	}
	for _, m := range pending {
		w.set(sheetID, m.value, append(slices.Clone(path), m.key)...)
	}
}
