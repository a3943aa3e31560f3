package asset

import "strings"

// Kind is the closed set of asset kinds spindle knows how to build.
type Kind int

const (
	KindWasm Kind = iota + 1
	KindStylesheet
	KindCopyFile
	KindIcon
	KindInline
)

// String returns the kind's canonical name.
func (k Kind) String() string {
	switch k {
	case KindWasm:
		return "wasm"
	case KindStylesheet:
		return "stylesheet"
	case KindCopyFile:
		return "copy-file"
	case KindIcon:
		return "icon"
	case KindInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Compiled reports whether the kind runs an external compiler whose
// reported dependencies should be watched.
func (k Kind) Compiled() bool {
	return k == KindWasm || k == KindStylesheet
}

// KindFromRel maps a declaration's rel attribute to a Kind.
func KindFromRel(rel string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(rel)) {
	case "wasm", "go":
		return KindWasm, true
	case "scss", "sass", "css":
		return KindStylesheet, true
	case "copy-file":
		return KindCopyFile, true
	case "icon":
		return KindIcon, true
	case "inline":
		return KindInline, true
	}
	return 0, false
}
