// Package tabular сохраняет сеть в каталог CSV-таблиц и читает её обратно.
//
// Структура каталога:
//
//	producers.csv, consumers.csv, forks.csv   узлы по ролям
//	pipes.csv                                 трубы
//	sequences/<list>-<attr>.csv               временные ряды
//
// Первый столбец таблиц компонентов содержит идентификатор. Первый столбец
// временного ряда содержит номер снимка, остальные столбцы соответствуют
// компонентам. Перед записью и после чтения сеть проверяется network.Validate.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"heatnet/pkg/apperror"
	"heatnet/pkg/network"
)

const (
	ext         = ".csv"
	sequenceDir = "sequences"
)

// Фиксированные столбцы таблиц
const (
	ColID       = "id"
	ColX        = "x"
	ColY        = "y"
	ColFrom     = "from_node"
	ColTo       = "to_node"
	ColLength   = "length"
	ColDiameter = "diameter"
	ColGeometry = "geometry"
	ColSnapshot = "snapshot"
)

var (
	nodeColumns = []string{ColID, ColX, ColY}
	pipeColumns = []string{ColID, ColFrom, ColTo, ColLength, ColDiameter, ColGeometry}
)

// Export проверяет сеть и записывает её в dir. Пустые таблицы не пишутся.
func Export(dir string, t *network.Topology) error {
	if err := network.Validate(t); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	for _, role := range network.NodeRoles {
		nodes := t.NodesByRole(role)
		if len(nodes) == 0 {
			continue
		}
		records, err := encodeNodes(nodes)
		if err != nil {
			return err
		}
		if err := writeCSV(filepath.Join(dir, role.ListName()+ext), records); err != nil {
			return err
		}
	}

	if len(t.Pipes) > 0 {
		records, err := encodePipes(t.Pipes)
		if err != nil {
			return err
		}
		if err := writeCSV(filepath.Join(dir, network.ListPipes+ext), records); err != nil {
			return err
		}
	}

	lists := t.Sequences.Lists()
	if len(lists) == 0 {
		return nil
	}
	seqDir := filepath.Join(dir, sequenceDir)
	if err := os.MkdirAll(seqDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", seqDir, err)
	}
	for _, list := range lists {
		for _, attr := range t.Sequences.Attributes(list) {
			tbl, _ := t.Sequences.Get(list, attr)
			if err := tbl.ValidateShape(); err != nil {
				return err
			}
			name := list + "-" + attr + ext
			if err := writeCSV(filepath.Join(seqDir, name), encodeSequence(tbl)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Import читает сеть из каталога dir
func Import(dir string) (*network.Topology, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperror.Wrap(err, apperror.CodeNotFound, "network directory does not exist").WithField(dir)
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedTable, "cannot open network directory").WithField(dir)
	}
	if !info.IsDir() {
		return nil, apperror.NewWithField(apperror.CodeMalformedTable, "not a directory", dir)
	}
	return ImportFS(os.DirFS(dir))
}

// ImportFS читает сеть из корня fsys. Неизвестные таблицы, каталоги и
// файлы не в формате CSV отклоняются с CodeUnknownTable.
func ImportFS(fsys fs.FS) (*network.Topology, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	tables := make(map[string][][]string)
	var sequences []string

	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			if name != sequenceDir {
				return nil, apperror.NewWithField(apperror.CodeUnknownTable,
					"unknown subdirectory", name)
			}
			seqs, err := fs.ReadDir(fsys, sequenceDir)
			if err != nil {
				return nil, err
			}
			for _, s := range seqs {
				if s.IsDir() || path.Ext(s.Name()) != ext {
					return nil, apperror.NewWithField(apperror.CodeUnknownTable,
						"sequences may only contain csv files", path.Join(sequenceDir, s.Name()))
				}
				sequences = append(sequences, s.Name())
			}
		case path.Ext(name) == ext:
			list := strings.TrimSuffix(name, ext)
			if _, ok := network.RoleFromList(list); !ok && list != network.ListPipes {
				return nil, apperror.NewWithField(apperror.CodeUnknownTable,
					"unknown component table", name)
			}
			records, err := readCSV(fsys, name)
			if err != nil {
				return nil, err
			}
			tables[list] = records
		default:
			return nil, apperror.NewWithField(apperror.CodeUnknownTable,
				"unsupported file type", name)
		}
	}

	t := network.NewTopology()

	var nodes []*network.Node
	for _, role := range network.NodeRoles {
		records, ok := tables[role.ListName()]
		if !ok {
			continue
		}
		decoded, err := decodeNodes(role, records)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, decoded...)
	}
	for _, n := range orderNodes(nodes) {
		t.AddNode(n)
	}

	if records, ok := tables[network.ListPipes]; ok {
		pipes, err := decodePipes(records)
		if err != nil {
			return nil, err
		}
		for _, p := range pipes {
			t.AddPipe(p)
		}
	}

	for _, name := range sequences {
		list, attr, err := parseSequenceName(name)
		if err != nil {
			return nil, err
		}
		file := path.Join(sequenceDir, name)
		records, err := readCSV(fsys, file)
		if err != nil {
			return nil, err
		}
		tbl, err := decodeSequence(file, records)
		if err != nil {
			return nil, err
		}
		t.Sequences.Set(list, attr, tbl)
	}

	if err := network.Validate(t); err != nil {
		return nil, err
	}
	if demand, ok := t.Demand(); ok {
		if err := demand.Validate(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// parseSequenceName разбирает имя <list>-<attr>.csv
func parseSequenceName(name string) (list, attr string, err error) {
	base := strings.TrimSuffix(name, ext)
	list, attr, ok := strings.Cut(base, "-")
	if !ok || attr == "" {
		return "", "", apperror.NewWithField(apperror.CodeMalformedTable,
			"sequence file name must be <list>-<attribute>.csv", name)
	}
	if _, known := network.RoleFromList(list); !known && list != network.ListPipes {
		return "", "", apperror.NewWithField(apperror.CodeUnknownTable,
			"sequence refers to unknown component list", name)
	}
	return list, attr, nil
}

// orderNodes восстанавливает порядок узлов по числовому суффиксу
// идентификатора (producers-0, forks-1, ...). Если суффиксы не разбираются
// или повторяются, остаётся порядок таблиц.
func orderNodes(nodes []*network.Node) []*network.Node {
	index := make(map[*network.Node]int, len(nodes))
	seen := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		i := strings.LastIndexByte(n.ID, '-')
		if i < 0 {
			return nodes
		}
		k, err := strconv.Atoi(n.ID[i+1:])
		if err != nil || seen[k] {
			return nodes
		}
		seen[k] = true
		index[n] = k
	}

	out := append([]*network.Node(nil), nodes...)
	sort.SliceStable(out, func(a, b int) bool {
		return index[out[a]] < index[out[b]]
	})
	return out
}

func readCSV(fsys fs.FS, name string) ([][]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, apperror.Wrap(err, apperror.CodeMalformedTable, "malformed csv").WithField(name)
		}
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperror.NewWithField(apperror.CodeMalformedTable, "table has no header", name)
	}
	return records, nil
}

func writeCSV(file string, records [][]string) (err error) {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return writeRecords(f, records)
}

func writeRecords(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(table, field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperror.NewWithField(apperror.CodeMalformedTable,
			fmt.Sprintf("%s is not a number: %q", field, raw), table)
	}
	return v, nil
}
