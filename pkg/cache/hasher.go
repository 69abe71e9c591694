package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"

	"heatnet/pkg/network"
)

const flowPrefix = "flow:"

// NetworkHash вычисляет хеш структуры сети. Порядок узлов и труб входит в
// хеш: от него зависит порядок столбцов результата.
func NetworkHash(t *network.Topology) string {
	if t == nil {
		return ""
	}

	h := sha256.New()
	for _, n := range t.Nodes {
		write(h, "n", n.ID, n.Role.String())
	}
	for _, p := range t.Pipes {
		write(h, "p", p.ID, p.From, p.To,
			strconv.FormatFloat(p.Length, 'g', -1, 64),
			strconv.FormatFloat(p.Diameter, 'g', -1, 64))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// DemandHash вычисляет хеш матрицы спроса
func DemandHash(d *network.DemandMatrix) string {
	if d == nil {
		return ""
	}

	h := sha256.New()
	write(h, append([]string{"c"}, d.Columns...)...)
	for i, snap := range d.Snapshots {
		fields := make([]string, 0, len(d.Columns)+2)
		fields = append(fields, "s", strconv.Itoa(snap))
		for _, v := range d.Values[i] {
			fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
		}
		write(h, fields...)
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// write пишет поля с разделителями, чтобы "ab","c" и "a","bc" различались
func write(h hash.Hash, fields ...string) {
	for _, f := range fields {
		h.Write([]byte(strconv.Itoa(len(f))))
		h.Write([]byte{':'})
		h.Write([]byte(f))
	}
	h.Write([]byte{';'})
}

// FlowKey строит ключ кэша для результата расчёта
func FlowKey(networkHash, demandHash string) string {
	return flowPrefix + networkHash + ":" + demandHash
}

// FlowPrefix возвращает префикс ключей расчётов одной сети
func FlowPrefix(networkHash string) string {
	return flowPrefix + networkHash + ":"
}

// ShortHash короткий хеш (16 символов)
func ShortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
