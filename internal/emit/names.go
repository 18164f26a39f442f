package emit

import (
	"fmt"
	"strings"
)

type nameType int

const (
	nameVariable nameType = iota
	nameProcedure
)

// Words a generated identifier must never equal.
var reservedWords = func() map[string]struct{} {
	words := strings.Split(
		"False,None,True,and,as,assert,break,class,continue,def,del,elif,else,"+
			"except,exec,finally,for,from,global,if,import,in,is,lambda,nonlocal,"+
			"not,or,pass,print,raise,return,try,while,with,yield,"+
			"NotImplemented,Ellipsis,__debug__,quit,exit,copyright,license,credits,"+
			"abs,all,any,bin,bool,bytearray,bytes,callable,chr,classmethod,compile,"+
			"complex,delattr,dict,dir,divmod,enumerate,eval,filter,float,format,"+
			"frozenset,getattr,globals,hasattr,hash,help,hex,id,input,int,"+
			"isinstance,issubclass,iter,len,list,locals,map,max,memoryview,min,"+
			"next,object,oct,open,ord,pow,property,range,repr,reversed,round,set,"+
			"setattr,slice,sorted,staticmethod,str,sum,super,tuple,type,vars,zip,"+
			"math,random,Number", ",")
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// names hands out safe, distinct target-language identifiers. Lookups are
// case-insensitive per name type; the reverse set is shared so a
// procedure and a variable never collide.
type names struct {
	db      map[nameType]map[string]string
	reverse map[string]struct{}
}

func newNames() *names {
	return &names{
		db:      map[nameType]map[string]string{nameVariable: {}, nameProcedure: {}},
		reverse: map[string]struct{}{},
	}
}

// get returns the identifier bound to name, binding a fresh one on first use.
func (n *names) get(name string, typ nameType) string {
	key := strings.ToLower(name)
	if id, ok := n.db[typ][key]; ok {
		return id
	}
	id := n.distinct(name)
	n.db[typ][key] = id
	return id
}

// distinct returns a never-before-issued identifier derived from name.
func (n *names) distinct(name string) string {
	base := safeName(name)
	id := base
	for i := 2; ; i++ {
		_, taken := n.reverse[id]
		_, reserved := reservedWords[id]
		if !taken && !reserved {
			break
		}
		id = fmt.Sprintf("%s%d", base, i)
	}
	n.reverse[id] = struct{}{}
	return id
}

// Characters URI encoding leaves alone; they collapse to '_' like any
// other non-word character.
const uriUnreserved = ";,/?:@&=+$-.!~*'()#"

// safeName turns arbitrary user text into an identifier: spaces and
// punctuation become '_', non-ASCII bytes become _XX, and a leading digit
// gets a "my_" prefix.
func safeName(name string) string {
	if name == "" {
		return "unnamed"
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r < 0x80 && strings.ContainsRune(uriUnreserved, r):
			sb.WriteByte('_')
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&sb, "_%02X", b)
			}
		}
	}
	s := sb.String()
	if s[0] >= '0' && s[0] <= '9' {
		s = "my_" + s
	}
	return s
}
