// Package runtimeembed provides the embedded native support sources compiled into every shim.
package runtimeembed

import (
	"embed"
	"io/fs"
)

// NativeDir is the root of the embedded sources inside NativeRuntimeFS.
const NativeDir = "native"

// HeaderName is the file name the shim includes.
const HeaderName = "hdlbind_shim.h"

//go:embed native/*.h
var nativeRuntimeFS embed.FS

// NativeRuntimeFS exposes the embedded support sources under NativeDir.
func NativeRuntimeFS() fs.FS {
	return nativeRuntimeFS
}
