package shim

// Every exported symbol of a generated shim is named here; the loader resolves
// through the same functions so the two cannot drift apart.

const prefix = "hdlbind_"

// ModelClass is the C++ class Verilator generates for top.
func ModelClass(top string) string { return "V" + top }

// ModelHeader is the header Verilator generates for top.
func ModelHeader(top string) string { return "V" + top + ".h" }

func ABIVersion(top string) string { return prefix + top + "_abi_version" }
func New(top string) string        { return prefix + top + "_new" }
func Delete(top string) string     { return prefix + top + "_delete" }
func Eval(top string) string       { return prefix + top + "_eval" }
func Tick(top string) string       { return prefix + top + "_tick" }

func Get(top, port string) string { return prefix + top + "_get_" + port }
func Set(top, port string) string { return prefix + top + "_set_" + port }

func TraceOpen(top string) string  { return prefix + top + "_trace_open" }
func TraceDump(top string) string  { return prefix + top + "_trace_dump" }
func TraceClose(top string) string { return prefix + top + "_trace_close" }

// LibraryName is the --lib-create name passed to verilator; the artifact is
// lib<LibraryName>.so.
func LibraryName(top string) string { return prefix + top }

// FileName is the name of the generated translation unit.
func FileName(top string) string { return prefix + top + "_shim.cpp" }
