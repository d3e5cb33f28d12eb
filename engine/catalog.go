package engine

import (
	"fmt"
	"sync"

	"github.com/google/btree"
)

const BTreeDefaultDegree = 12

type catalogItem struct {
	function *TableFunction
}

func (item *catalogItem) Less(than btree.Item) bool {
	thanTyped, ok := than.(*catalogItem)
	if !ok {
		panic(fmt.Sprintf("invalid catalog item comparison: %T", than))
	}
	return item.function.Name < thanTyped.function.Name
}

// Catalog holds the table functions of a single database, ordered by name.
type Catalog struct {
	mutex     sync.RWMutex
	functions *btree.BTree
}

func NewCatalog() *Catalog {
	return &Catalog{
		functions: btree.New(BTreeDefaultDegree),
	}
}

func (c *Catalog) CreateTableFunction(function *TableFunction) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := &catalogItem{function: function}
	if c.functions.Has(key) {
		return CatalogErrorf("Table Function with name \"%s\" already exists!", function.Name)
	}
	c.functions.ReplaceOrInsert(key)
	return nil
}

func (c *Catalog) DropTableFunction(name string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.functions.Delete(&catalogItem{function: &TableFunction{Name: name}}) == nil {
		return CatalogErrorf("Table Function with name %s does not exist!", name)
	}
	return nil
}

func (c *Catalog) GetTableFunction(name string) (*TableFunction, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item := c.functions.Get(&catalogItem{function: &TableFunction{Name: name}})
	if item == nil {
		return nil, CatalogErrorf("Table Function with name %s does not exist!", name)
	}
	return item.(*catalogItem).function, nil
}

// ListTableFunctions returns the registered function names in ascending order.
func (c *Catalog) ListTableFunctions() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	out := make([]string, 0, c.functions.Len())
	c.functions.Ascend(func(item btree.Item) bool {
		out = append(out, item.(*catalogItem).function.Name)
		return true
	})
	return out
}
