package wasmtest

// Value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
	F32 byte = 0x7d
	F64 byte = 0x7c
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionStart    = 8
	sectionCode     = 10
	sectionData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02
)

type funcType struct {
	params  []byte
	results []byte
}

type funcImport struct {
	module string
	name   string
	typ    uint32
}

type function struct {
	typ    uint32
	locals []byte
	body   []byte
}

type global struct {
	init    int32
	mutable bool
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	offset int32
	data   []byte
}

// Module builds a core wasm binary with one memory, i32 globals and
// function imports. All imports must be declared before the first Func.
type Module struct {
	types    []funcType
	imports  []funcImport
	funcs    []function
	globals  []global
	exports  []export
	data     []segment
	memPages uint32
	hasMem   bool
	start    int64
}

func NewModule() *Module {
	return &Module{start: -1}
}

// Type returns the index of the given function type, adding it if needed.
func (m *Module) Type(params, results []byte) uint32 {
	for i, t := range m.types {
		if string(t.params) == string(params) && string(t.results) == string(results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, params, results []byte) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede defined functions")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typ: m.Type(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function. locals lists one value type per extra local.
// body must not include the trailing end opcode.
func (m *Module) Func(params, results, locals []byte, body []byte) uint32 {
	m.funcs = append(m.funcs, function{typ: m.Type(params, results), locals: locals, body: body})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Global adds a mutable or immutable i32 global.
func (m *Module) Global(init int32, mutable bool) uint32 {
	m.globals = append(m.globals, global{init: init, mutable: mutable})
	return uint32(len(m.globals) - 1)
}

func (m *Module) Memory(pages uint32) {
	m.memPages = pages
	m.hasMem = true
}

func (m *Module) Export(name string, funcIdx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: funcIdx})
}

func (m *Module) ExportMemory(name string) {
	m.exports = append(m.exports, export{name: name, kind: kindMemory, idx: 0})
}

func (m *Module) Start(funcIdx uint32) {
	m.start = int64(funcIdx)
}

// Data places bytes at a fixed memory offset.
func (m *Module) Data(offset int32, data []byte) {
	m.data = append(m.data, segment{offset: offset, data: data})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	w := &Writer{}
	w.Byte(0x00, 0x61, 0x73, 0x6d)
	w.Byte(0x01, 0x00, 0x00, 0x00)

	if len(m.types) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.types)))
		for _, t := range m.types {
			sec.Byte(0x60)
			sec.WriteVec(t.params)
			sec.WriteVec(t.results)
		}
		writeSection(w, sectionType, sec)
	}

	if len(m.imports) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.WriteName(imp.module)
			sec.WriteName(imp.name)
			sec.Byte(kindFunc)
			sec.WriteU32(imp.typ)
		}
		writeSection(w, sectionImport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.WriteU32(f.typ)
		}
		writeSection(w, sectionFunction, sec)
	}

	if m.hasMem {
		sec := &Writer{}
		sec.WriteU32(1)
		sec.Byte(0x00)
		sec.WriteU32(m.memPages)
		writeSection(w, sectionMemory, sec)
	}

	if len(m.globals) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.Byte(I32)
			if g.mutable {
				sec.Byte(0x01)
			} else {
				sec.Byte(0x00)
			}
			sec.Byte(OpI32Const)
			sec.WriteS32(g.init)
			sec.Byte(OpEnd)
		}
		writeSection(w, sectionGlobal, sec)
	}

	if len(m.exports) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.exports)))
		for _, e := range m.exports {
			sec.WriteName(e.name)
			sec.Byte(e.kind)
			sec.WriteU32(e.idx)
		}
		writeSection(w, sectionExport, sec)
	}

	if m.start >= 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(m.start))
		writeSection(w, sectionStart, sec)
	}

	if len(m.funcs) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := &Writer{}
			body.WriteU32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.WriteU32(1)
				body.Byte(l)
			}
			body.Byte(f.body...)
			body.Byte(OpEnd)
			sec.WriteVec(body.Bytes())
		}
		writeSection(w, sectionCode, sec)
	}

	if len(m.data) > 0 {
		sec := &Writer{}
		sec.WriteU32(uint32(len(m.data)))
		for _, d := range m.data {
			sec.WriteU32(0) // active, memory 0
			sec.Byte(OpI32Const)
			sec.WriteS32(d.offset)
			sec.Byte(OpEnd)
			sec.WriteVec(d.data)
		}
		writeSection(w, sectionData, sec)
	}

	return w.Bytes()
}

func writeSection(w *Writer, id byte, sec *Writer) {
	w.Byte(id)
	w.WriteVec(sec.Bytes())
}
