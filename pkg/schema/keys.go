package schema

import (
	"github.com/valyala/fastjson"
)

// keySet describes the allowed keys of a JSON object and the shapes of its
// nested objects.
type keySet struct {
	keys   map[string]bool
	nested map[string]keySet
}

func shape(keys ...string) keySet {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return keySet{keys: m}
}

func (k keySet) with(field string, child keySet) keySet {
	if k.nested == nil {
		k.nested = make(map[string]keySet)
	}
	k.nested[field] = child
	return k
}

var (
	txKeys = shape("sourceTxHash", "destTxHash")

	eventKeys = shape("id", "createdAt", "actor", "app", "intentId", "kind", "status",
		"chains", "token", "tx", "refs", "ai", "signals").
		with("chains", shape("sourceChainId", "destChainId")).
		with("token", shape("symbol", "amount")).
		with("tx", txKeys).
		with("refs", shape("explorerSourceUrl", "explorerDestUrl")).
		with("ai", shape("mode", "receiptRoot", "model", "verdict", "reason")).
		with("signals", shape("items", "meta").
			with("meta", shape("deployAddress", "errors", "decimals", "slippage")))

	statusKeys = shape("actor", "id", "status", "tx").with("tx", txKeys)
)

var parserPool fastjson.ParserPool

// unknownKeys reports keys in raw that the given shape does not allow, as
// "extra:<path>.<key>". It returns an error when raw is not a JSON object.
func unknownKeys(raw []byte, allowed keySet) ([]string, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, err
	}
	obj, err := v.Object()
	if err != nil {
		return nil, err
	}
	var extra []string
	walkKeys(obj, allowed, "root", &extra)
	return extra, nil
}

func walkKeys(obj *fastjson.Object, allowed keySet, path string, extra *[]string) {
	obj.Visit(func(key []byte, v *fastjson.Value) {
		k := string(key)
		if !allowed.keys[k] {
			*extra = append(*extra, "extra:"+path+"."+k)
			return
		}
		child, ok := allowed.nested[k]
		if !ok || v.Type() != fastjson.TypeObject {
			return
		}
		childObj, _ := v.Object()
		childPath := k
		if path != "root" {
			childPath = path + "." + k
		}
		walkKeys(childObj, child, childPath, extra)
	})
}
