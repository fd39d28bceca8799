package store

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"sjsage522/inventorywatch/internal/inventory"
	"sjsage522/inventorywatch/logger"
	"sjsage522/inventorywatch/pkg/errors"
)

// Output kinds, one file per kind and run date
const (
	KindInventory      = "inventory"
	KindAddedByGroup   = "added_by_group"
	KindRemovedByGroup = "removed_by_group"
	KindDelta          = "delta"
	KindPriceChanges   = "price_changes"
)

// DateLayout is the run date format used in file names and rows
const DateLayout = "2006-01-02"

// Change markers of the delta file
const (
	ChangeAdded   = "added"
	ChangeRemoved = "removed"
)

// Column sets of the output files
var (
	InventoryColumns   = []string{"date", "year", "make", "model", "vin", "price", "url"}
	RollupColumns      = []string{"year", "make", "model", "count", "vins"}
	DeltaColumns       = []string{"date", "year", "make", "model", "vin", "price", "url", "change"}
	PriceChangeColumns = []string{"date", "vin", "year", "make", "model", "old_price", "new_price", "delta", "url"}
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RunOutput is everything persisted for one run
type RunOutput struct {
	Date          string
	Records       []inventory.Record
	Delta         inventory.Delta
	AddedGroups   []inventory.RollupGroup
	RemovedGroups []inventory.RollupGroup
}

// CSVStore keeps snapshots and run outputs as CSV files in one directory
type CSVStore struct {
	dir string
	log *logger.Logger
}

// NewCSVStore creates the output directory if needed
func NewCSVStore(dir string) (*CSVStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.NewSetup("store", "output directory is empty", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewSetup("store", "cannot create output directory", err)
	}
	return &CSVStore{dir: dir, log: logger.ForStore()}, nil
}

// Path returns the file path of an output kind for a date
func (s *CSVStore) Path(kind, date string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", kind, date))
}

// LatestSnapshot loads the newest inventory snapshot dated strictly before
// the given date. It returns nil without error when there is none.
func (s *CSVStore) LatestSnapshot(before string) (*inventory.Snapshot, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, KindInventory+"_*.csv"))
	if err != nil {
		return nil, errors.NewStorage("store", "cannot list snapshots", err)
	}

	var dates []string
	for _, m := range matches {
		date, ok := snapshotDate(filepath.Base(m))
		if ok && date < before {
			dates = append(dates, date)
		}
	}
	if len(dates) == 0 {
		return nil, nil
	}
	sort.Strings(dates)
	latest := dates[len(dates)-1]

	snap, err := s.ReadSnapshot(s.Path(KindInventory, latest), latest)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("date", latest).Int("vehicles", snap.Len()).Msg("Previous snapshot loaded")
	return snap, nil
}

// snapshotDate extracts the date from an inventory file name
func snapshotDate(name string) (string, bool) {
	if !strings.HasPrefix(name, KindInventory+"_") || !strings.HasSuffix(name, ".csv") {
		return "", false
	}
	date := strings.TrimSuffix(strings.TrimPrefix(name, KindInventory+"_"), ".csv")
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", false
	}
	return date, true
}

// ReadSnapshot reads an inventory file. A missing file yields nil without
// error. Columns are matched by header name, so files that lack a column
// (such as price in older snapshots) still load.
func (s *CSVStore) ReadSnapshot(path, date string) (*inventory.Snapshot, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorage("store", "cannot open snapshot", err)
	}
	defer f.Close()

	records, err := readRecords(f)
	if err != nil {
		return nil, errors.NewParsing("store", "malformed snapshot "+filepath.Base(path), err)
	}
	return inventory.NewSnapshot(date, records), nil
}

func readRecords(rd io.Reader) ([]inventory.Record, error) {
	// skip BOM if present
	br := bufio.NewReader(rd)
	if first3, _ := br.Peek(3); len(first3) == 3 && string(first3) == string(utf8BOM) {
		br.Discard(3)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []inventory.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, inventory.Record{
			Date:  get(row, "date"),
			Year:  get(row, "year"),
			Make:  get(row, "make"),
			Model: get(row, "model"),
			VIN:   strings.ToUpper(get(row, "vin")),
			Price: get(row, "price"),
			URL:   get(row, "url"),
		})
	}
	return records, nil
}

// WriteRun writes every output file of a run. All files are staged first
// and the inventory snapshot is moved into place last. When a move fails,
// the files of this run already moved are removed again, so a failed run
// never leaves a partial set for its date.
func (s *CSVStore) WriteRun(out RunOutput) ([]string, error) {
	type staged struct {
		tmp, final string
	}
	files := []struct {
		kind string
		rows [][]string
	}{
		{KindAddedByGroup, rollupRows(out.AddedGroups)},
		{KindRemovedByGroup, rollupRows(out.RemovedGroups)},
		{KindDelta, deltaRows(out.Delta)},
		{KindPriceChanges, priceChangeRows(out.Date, out.Delta.PriceChanges)},
		{KindInventory, inventoryRows(out.Records)},
	}

	var stagedFiles []staged
	cleanup := func() {
		for _, st := range stagedFiles {
			os.Remove(st.tmp)
		}
	}

	for _, file := range files {
		tmp, err := s.stage(file.kind, out.Date, headerFor(file.kind), file.rows)
		if err != nil {
			cleanup()
			return nil, errors.NewStorage("store", "cannot write "+file.kind, err)
		}
		stagedFiles = append(stagedFiles, staged{tmp: tmp, final: s.Path(file.kind, out.Date)})
	}

	paths := make([]string, 0, len(stagedFiles))
	for i, st := range stagedFiles {
		if err := os.Rename(st.tmp, st.final); err != nil {
			for _, rest := range stagedFiles[i:] {
				os.Remove(rest.tmp)
			}
			for _, moved := range paths {
				if rmErr := os.Remove(moved); rmErr != nil {
					s.log.Warn().Err(rmErr).Str("path", moved).Msg("Cannot roll back output file")
				}
			}
			return nil, errors.NewStorage("store", "cannot move "+filepath.Base(st.final)+" into place", err)
		}
		paths = append(paths, st.final)
	}

	s.log.Info().
		Str("date", out.Date).
		Int("vehicles", len(out.Records)).
		Int("files", len(paths)).
		Msg("Run outputs written")
	return paths, nil
}

// stage writes rows to a temp file next to the final path
func (s *CSVStore) stage(kind, date string, header []string, rows [][]string) (string, error) {
	f, err := os.CreateTemp(s.dir, fmt.Sprintf(".%s_%s.*.tmp", kind, date))
	if err != nil {
		return "", err
	}
	name := f.Name()
	fail := func(err error) (string, error) {
		f.Close()
		os.Remove(name)
		return "", err
	}

	bufw := bufio.NewWriter(f)
	w := csv.NewWriter(bufw)
	if err := w.Write(header); err != nil {
		return fail(err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fail(err)
	}
	if err := w.Error(); err != nil {
		return fail(err)
	}
	if err := bufw.Flush(); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func headerFor(kind string) []string {
	switch kind {
	case KindAddedByGroup, KindRemovedByGroup:
		return RollupColumns
	case KindDelta:
		return DeltaColumns
	case KindPriceChanges:
		return PriceChangeColumns
	default:
		return InventoryColumns
	}
}

func recordRow(r inventory.Record) []string {
	return []string{r.Date, r.Year, r.Make, r.Model, r.VIN, r.Price, r.URL}
}

func inventoryRows(records []inventory.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, recordRow(r))
	}
	return rows
}

func rollupRows(groups []inventory.RollupGroup) [][]string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{g.Year, g.Make, g.Model, strconv.Itoa(g.Count), g.JoinedVINs()})
	}
	return rows
}

func deltaRows(d inventory.Delta) [][]string {
	rows := make([][]string, 0, len(d.Added)+len(d.Removed))
	for _, r := range d.Added {
		rows = append(rows, append(recordRow(r), ChangeAdded))
	}
	for _, r := range d.Removed {
		rows = append(rows, append(recordRow(r), ChangeRemoved))
	}
	return rows
}

func priceChangeRows(date string, changes []inventory.PriceChange) [][]string {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{
			date,
			c.VIN,
			c.Year,
			c.Make,
			c.Model,
			strconv.FormatInt(c.OldPrice, 10),
			strconv.FormatInt(c.NewPrice, 10),
			strconv.FormatInt(c.Delta, 10),
			c.URL,
		})
	}
	return rows
}
