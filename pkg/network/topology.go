// Package network описывает модель тепловой сети: узлы (источник,
// потребители, развилки), трубы, временные ряды и проверку согласованности.
package network

import (
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb"
)

// Role роль узла тепловой сети
type Role int

const (
	RoleUnspecified Role = iota
	RoleProducer
	RoleConsumer
	RoleFork
)

// Имена списков компонентов (таблиц)
const (
	ListProducers = "producers"
	ListConsumers = "consumers"
	ListForks     = "forks"
	ListPipes     = "pipes"

	// AttrMassFlow атрибут временного ряда расхода потребителей, кг/с
	AttrMassFlow = "mass_flow"
)

// String возвращает строковое представление роли
func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "Producer"
	case RoleConsumer:
		return "Consumer"
	case RoleFork:
		return "Fork"
	default:
		return "Unspecified"
	}
}

// ListName возвращает имя списка компонентов, он же префикс идентификатора
func (r Role) ListName() string {
	switch r {
	case RoleProducer:
		return ListProducers
	case RoleConsumer:
		return ListConsumers
	case RoleFork:
		return ListForks
	default:
		return ""
	}
}

// RoleFromList возвращает роль по имени списка
func RoleFromList(list string) (Role, bool) {
	switch list {
	case ListProducers:
		return RoleProducer, true
	case ListConsumers:
		return RoleConsumer, true
	case ListForks:
		return RoleFork, true
	default:
		return RoleUnspecified, false
	}
}

// NodeRoles роли узлов в порядке таблиц
var NodeRoles = []Role{RoleProducer, RoleConsumer, RoleFork}

// QualifiedID возвращает идентификатор в пространстве имён роли.
// Уже квалифицированный идентификатор возвращается без изменений.
func QualifiedID(role Role, raw string) string {
	prefix := role.ListName() + "-"
	if strings.HasPrefix(raw, prefix) {
		return raw
	}
	return prefix + raw
}

// PipeID возвращает идентификатор трубы с индексом i
func PipeID(i int) string {
	return fmt.Sprintf("%s-%d", ListPipes, i)
}

// Node узел тепловой сети
type Node struct {
	ID         string
	Role       Role
	X          float64
	Y          float64
	Attributes map[string]string
}

// Point возвращает координаты узла
func (n *Node) Point() orb.Point {
	return orb.Point{n.X, n.Y}
}

// Clone создаёт глубокую копию узла
func (n *Node) Clone() *Node {
	clone := &Node{
		ID:   n.ID,
		Role: n.Role,
		X:    n.X,
		Y:    n.Y,
	}
	if n.Attributes != nil {
		clone.Attributes = make(map[string]string, len(n.Attributes))
		for k, v := range n.Attributes {
			clone.Attributes[k] = v
		}
	}
	return clone
}

// Pipe труба между двумя узлами. Ориентация From -> To задаёт знак расхода.
type Pipe struct {
	ID         string
	From       string
	To         string
	Length     float64
	Diameter   float64
	Geometry   orb.LineString
	Attributes map[string]string
}

// Clone создаёт глубокую копию трубы
func (p *Pipe) Clone() *Pipe {
	clone := &Pipe{
		ID:       p.ID,
		From:     p.From,
		To:       p.To,
		Length:   p.Length,
		Diameter: p.Diameter,
	}
	if p.Geometry != nil {
		clone.Geometry = append(orb.LineString(nil), p.Geometry...)
	}
	if p.Attributes != nil {
		clone.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			clone.Attributes[k] = v
		}
	}
	return clone
}

// Key возвращает упорядоченную пару концов трубы
func (p *Pipe) Key() PipeKey {
	return PipeKey{From: p.From, To: p.To}
}

// PipeKey упорядоченная пара узлов
type PipeKey struct {
	From string
	To   string
}

// String возвращает строковое представление ключа
func (k PipeKey) String() string {
	return k.From + "->" + k.To
}

// Topology набор узлов и труб тепловой сети с временными рядами.
// Порядок Nodes и Pipes значим: он определяет порядок строк и столбцов
// матрицы инцидентности.
type Topology struct {
	Nodes     []*Node
	Pipes     []*Pipe
	Sequences SequenceStore

	nodeIndex map[string]int
	pipeIndex map[string]int

	mu sync.RWMutex
}

// NewTopology создаёт пустую топологию
func NewTopology() *Topology {
	return &Topology{
		Sequences: NewSequenceStore(),
		nodeIndex: make(map[string]int),
		pipeIndex: make(map[string]int),
	}
}

// AddNode добавляет узел. При повторе идентификатора индекс указывает на
// первый узел, дубликат обнаруживает Validate.
func (t *Topology) AddNode(node *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureIndex()
	if _, ok := t.nodeIndex[node.ID]; !ok {
		t.nodeIndex[node.ID] = len(t.Nodes)
	}
	t.Nodes = append(t.Nodes, node)
}

// AddPipe добавляет трубу
func (t *Topology) AddPipe(pipe *Pipe) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureIndex()
	if _, ok := t.pipeIndex[pipe.ID]; !ok {
		t.pipeIndex[pipe.ID] = len(t.Pipes)
	}
	t.Pipes = append(t.Pipes, pipe)
}

// ensureIndex строит индексы, если топология собрана литералом
func (t *Topology) ensureIndex() {
	if t.nodeIndex == nil || t.pipeIndex == nil {
		t.reindex()
	}
}

func (t *Topology) reindex() {
	t.nodeIndex = make(map[string]int, len(t.Nodes))
	for i, n := range t.Nodes {
		if _, ok := t.nodeIndex[n.ID]; !ok {
			t.nodeIndex[n.ID] = i
		}
	}
	t.pipeIndex = make(map[string]int, len(t.Pipes))
	for i, p := range t.Pipes {
		if _, ok := t.pipeIndex[p.ID]; !ok {
			t.pipeIndex[p.ID] = i
		}
	}
}

// Node возвращает узел по идентификатору
func (t *Topology) Node(id string) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.nodeIndex[id]; ok && i < len(t.Nodes) && t.Nodes[i].ID == id {
		return t.Nodes[i], true
	}
	// Индекс мог устареть после прямой правки среза
	t.reindex()
	i, ok := t.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return t.Nodes[i], true
}

// Pipe возвращает трубу по идентификатору
func (t *Topology) Pipe(id string) (*Pipe, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.pipeIndex[id]; ok && i < len(t.Pipes) && t.Pipes[i].ID == id {
		return t.Pipes[i], true
	}
	t.reindex()
	i, ok := t.pipeIndex[id]
	if !ok {
		return nil, false
	}
	return t.Pipes[i], true
}

// NodeCount возвращает количество узлов
func (t *Topology) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.Nodes)
}

// PipeCount возвращает количество труб
func (t *Topology) PipeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.Pipes)
}

// NodesByRole возвращает узлы роли в порядке топологии
func (t *Topology) NodesByRole(role Role) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []*Node
	for _, n := range t.Nodes {
		if n.Role == role {
			result = append(result, n)
		}
	}
	return result
}

// Producer возвращает единственный источник, если он ровно один
func (t *Topology) Producer() (*Node, bool) {
	producers := t.NodesByRole(RoleProducer)
	if len(producers) != 1 {
		return nil, false
	}
	return producers[0], true
}

// Demand возвращает матрицу расходов потребителей из временных рядов
func (t *Topology) Demand() (*DemandMatrix, bool) {
	tbl, ok := t.Sequences.Get(ListConsumers, AttrMassFlow)
	if !ok {
		return nil, false
	}
	return &DemandMatrix{Table: *tbl.Clone()}, true
}

// SetDemand сохраняет матрицу расходов как временной ряд consumers/mass_flow
func (t *Topology) SetDemand(d *DemandMatrix) {
	if t.Sequences == nil {
		t.Sequences = NewSequenceStore()
	}
	t.Sequences.Set(ListConsumers, AttrMassFlow, d.Table.Clone())
}

// Clone создаёт глубокую копию топологии
func (t *Topology) Clone() *Topology {
	t.mu.RLock()
	defer t.mu.RUnlock()

	clone := NewTopology()
	clone.Nodes = make([]*Node, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		clone.Nodes = append(clone.Nodes, n.Clone())
	}
	clone.Pipes = make([]*Pipe, 0, len(t.Pipes))
	for _, p := range t.Pipes {
		clone.Pipes = append(clone.Pipes, p.Clone())
	}
	clone.Sequences = t.Sequences.Clone()
	clone.reindex()
	return clone
}

// AssignIdentifiers переводит идентификаторы узлов в пространства имён ролей
// (forks-i, consumers-i, producers-i) и переписывает концы труб через то же
// отображение. Трубы без идентификатора получают pipes-i. Повторный вызов
// ничего не меняет.
func AssignIdentifiers(t *Topology) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rename := make(map[string]string, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.Role == RoleUnspecified {
			continue
		}
		id := QualifiedID(n.Role, n.ID)
		if _, seen := rename[n.ID]; !seen {
			rename[n.ID] = id
		}
		n.ID = id
	}

	for i, p := range t.Pipes {
		if id, ok := rename[p.From]; ok {
			p.From = id
		}
		if id, ok := rename[p.To]; ok {
			p.To = id
		}
		if p.ID == "" {
			p.ID = PipeID(i)
		}
	}

	if t.Sequences != nil {
		for _, attrs := range t.Sequences {
			for _, tbl := range attrs {
				for j, col := range tbl.Columns {
					if id, ok := rename[col]; ok {
						tbl.Columns[j] = id
					}
				}
			}
		}
	}

	t.reindex()
	return rename
}
