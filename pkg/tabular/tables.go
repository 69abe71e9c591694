package tabular

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/paulmach/orb/encoding/wkt"

	"heatnet/pkg/apperror"
	"heatnet/pkg/network"
)

// extraColumns собирает ключи атрибутов, не входящие в фиксированную схему
func extraColumns(fixed []string, attrs ...map[string]string) ([]string, error) {
	reserved := make(map[string]bool, len(fixed))
	for _, c := range fixed {
		reserved[c] = true
	}

	set := make(map[string]bool)
	for _, a := range attrs {
		for k := range a {
			if reserved[k] {
				return nil, apperror.NewWithField(apperror.CodeMalformedTable,
					"attribute name clashes with a fixed column", k)
			}
			set[k] = true
		}
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func encodeNodes(nodes []*network.Node) ([][]string, error) {
	attrs := make([]map[string]string, len(nodes))
	for i, n := range nodes {
		attrs[i] = n.Attributes
	}
	extra, err := extraColumns(nodeColumns, attrs...)
	if err != nil {
		return nil, err
	}

	records := make([][]string, 0, len(nodes)+1)
	records = append(records, append(append([]string(nil), nodeColumns...), extra...))
	for _, n := range nodes {
		row := []string{n.ID, formatFloat(n.X), formatFloat(n.Y)}
		for _, k := range extra {
			row = append(row, n.Attributes[k])
		}
		records = append(records, row)
	}
	return records, nil
}

func encodePipes(pipes []*network.Pipe) ([][]string, error) {
	attrs := make([]map[string]string, len(pipes))
	for i, p := range pipes {
		attrs[i] = p.Attributes
	}
	extra, err := extraColumns(pipeColumns, attrs...)
	if err != nil {
		return nil, err
	}

	records := make([][]string, 0, len(pipes)+1)
	records = append(records, append(append([]string(nil), pipeColumns...), extra...))
	for _, p := range pipes {
		geom := ""
		if len(p.Geometry) > 0 {
			geom = wkt.MarshalString(p.Geometry)
		}
		row := []string{p.ID, p.From, p.To, formatFloat(p.Length), formatFloat(p.Diameter), geom}
		for _, k := range extra {
			row = append(row, p.Attributes[k])
		}
		records = append(records, row)
	}
	return records, nil
}

func encodeSequence(tbl *network.Table) [][]string {
	records := make([][]string, 0, len(tbl.Snapshots)+1)
	records = append(records, append([]string{ColSnapshot}, tbl.Columns...))
	for i, snap := range tbl.Snapshots {
		row := make([]string, 0, len(tbl.Columns)+1)
		row = append(row, strconv.Itoa(snap))
		for _, v := range tbl.Values[i] {
			row = append(row, formatFloat(v))
		}
		records = append(records, row)
	}
	return records
}

// header сопоставляет имена столбцов с позициями и проверяет обязательные
type header struct {
	table string
	pos   map[string]int
	names []string
}

func parseHeader(table string, row []string, required []string) (*header, error) {
	h := &header{table: table, pos: make(map[string]int, len(row)), names: row}
	for i, name := range row {
		if _, dup := h.pos[name]; dup {
			return nil, apperror.NewWithField(apperror.CodeMalformedTable,
				fmt.Sprintf("duplicate column %q", name), table)
		}
		h.pos[name] = i
	}
	if len(row) == 0 || row[0] != required[0] {
		return nil, apperror.NewWithField(apperror.CodeMalformedTable,
			fmt.Sprintf("first column must be %q", required[0]), table)
	}
	for _, name := range required {
		if _, ok := h.pos[name]; !ok {
			return nil, apperror.NewWithField(apperror.CodeMalformedTable,
				fmt.Sprintf("missing column %q", name), table)
		}
	}
	return h, nil
}

func (h *header) get(row []string, name string) string {
	return row[h.pos[name]]
}

// attributes возвращает значения дополнительных столбцов. Пустые ячейки
// пропускаются.
func (h *header) attributes(row []string, fixed []string) map[string]string {
	skip := make(map[string]bool, len(fixed))
	for _, c := range fixed {
		skip[c] = true
	}
	var attrs map[string]string
	for i, name := range h.names {
		if skip[name] || row[i] == "" {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[name] = row[i]
	}
	return attrs
}

func decodeNodes(role network.Role, records [][]string) ([]*network.Node, error) {
	table := role.ListName() + ext
	h, err := parseHeader(table, records[0], nodeColumns)
	if err != nil {
		return nil, err
	}

	nodes := make([]*network.Node, 0, len(records)-1)
	for _, row := range records[1:] {
		x, err := parseFloat(table, ColX, h.get(row, ColX))
		if err != nil {
			return nil, err
		}
		y, err := parseFloat(table, ColY, h.get(row, ColY))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &network.Node{
			ID:         network.QualifiedID(role, h.get(row, ColID)),
			Role:       role,
			X:          x,
			Y:          y,
			Attributes: h.attributes(row, nodeColumns),
		})
	}
	return nodes, nil
}

func decodePipes(records [][]string) ([]*network.Pipe, error) {
	table := network.ListPipes + ext
	h, err := parseHeader(table, records[0], pipeColumns[:3])
	if err != nil {
		return nil, err
	}

	pipes := make([]*network.Pipe, 0, len(records)-1)
	for _, row := range records[1:] {
		p := &network.Pipe{
			ID:         h.get(row, ColID),
			From:       h.get(row, ColFrom),
			To:         h.get(row, ColTo),
			Attributes: h.attributes(row, pipeColumns),
		}
		if _, ok := h.pos[ColLength]; ok {
			if p.Length, err = parseFloat(table, ColLength, h.get(row, ColLength)); err != nil {
				return nil, err
			}
		}
		if _, ok := h.pos[ColDiameter]; ok {
			if p.Diameter, err = parseFloat(table, ColDiameter, h.get(row, ColDiameter)); err != nil {
				return nil, err
			}
		}
		if _, ok := h.pos[ColGeometry]; ok {
			if raw := h.get(row, ColGeometry); raw != "" {
				ls, err := wkt.UnmarshalLineString(raw)
				if err != nil {
					return nil, apperror.Wrap(err, apperror.CodeMalformedTable,
						"geometry is not a WKT linestring").WithField(p.ID)
				}
				p.Geometry = ls
			}
		}
		pipes = append(pipes, p)
	}
	return pipes, nil
}

func decodeSequence(table string, records [][]string) (*network.Table, error) {
	head := records[0]
	if len(head) == 0 || head[0] != ColSnapshot {
		return nil, apperror.NewWithField(apperror.CodeMalformedTable,
			fmt.Sprintf("first column must be %q", ColSnapshot), table)
	}

	tbl := &network.Table{
		Columns: append([]string(nil), head[1:]...),
	}
	for _, row := range records[1:] {
		snap, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, apperror.NewWithField(apperror.CodeMalformedTable,
				fmt.Sprintf("snapshot is not an integer: %q", row[0]), table)
		}
		values := make([]float64, len(row)-1)
		for j, raw := range row[1:] {
			if values[j], err = parseFloat(table, tbl.Columns[j], raw); err != nil {
				return nil, err
			}
		}
		tbl.Snapshots = append(tbl.Snapshots, snap)
		tbl.Values = append(tbl.Values, values)
	}

	if err := tbl.ValidateShape(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedTable, "invalid sequence table").WithField(table)
	}
	return tbl, nil
}
