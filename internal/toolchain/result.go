package toolchain

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"path"

	"github.com/cespare/xxhash/v2"
)

// Output is one built file.
type Output struct {
	// Name is the file name, {basename}-{hash}.{ext} unless hashing is
	// disabled.
	Name string

	// Bytes is the file content.
	Bytes []byte

	// Hash is the 16-hex-digit content hash embedded in Name.
	Hash string

	// Integrity is the SRI value for Bytes ("" when disabled).
	Integrity string
}

// Result is what an adapter produced for one declaration.
type Result struct {
	// Primary is the main output (the stylesheet, the .wasm module, the
	// copied file, or the inline snippet).
	Primary Output

	// Extra holds secondary outputs such as the WASM JS glue.
	Extra []Output

	// Initializer is the WASM initializer module, if declared.
	Initializer *Output

	// TargetPath is the dist subdirectory outputs are written to.
	TargetPath string

	// Deps lists the files the build read, for watch mapping.
	Deps []string

	// Inline marks results embedded in the HTML rather than written.
	Inline bool

	// ContentType hints how inline content is embedded ("js", "mjs", "css").
	ContentType string
}

// Outputs returns every output that must be written to disk.
func (r *Result) Outputs() []Output {
	if r.Inline {
		return nil
	}
	outs := append([]Output{r.Primary}, r.Extra...)
	if r.Initializer != nil {
		outs = append(outs, *r.Initializer)
	}
	return outs
}

// URLPath returns the dist-relative, slash-separated path of an output.
func (r *Result) URLPath(o Output) string {
	if r.TargetPath == "" {
		return o.Name
	}
	return path.Join(r.TargetPath, o.Name)
}

// ContentHash returns the 64-bit xxhash of data as 16 lowercase hex digits.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// HashedName builds the content-addressed file name.
func HashedName(base, ext, hash string) string {
	if ext == "" {
		return base + "-" + hash
	}
	return base + "-" + hash + "." + ext
}

// PlainName is the file name used when content hashing is disabled.
func PlainName(base, ext string) string {
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// NewOutput hashes data and names it.
func NewOutput(base, ext string, data []byte, integrity string) (Output, error) {
	h := ContentHash(data)
	sri, err := Integrity(integrity, data)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Name:      HashedName(base, ext, h),
		Bytes:     data,
		Hash:      h,
		Integrity: sri,
	}, nil
}

// Integrity computes a subresource integrity value with the named digest.
// "none" and "" disable it.
func Integrity(algo string, data []byte) (string, error) {
	var h hash.Hash
	switch algo {
	case "", "none":
		return "", nil
	case "sha256":
		h = sha256.New()
	case "sha384":
		h = sha512.New384()
	case "sha512":
		h = sha512.New()
	default:
		return "", fmt.Errorf("unknown integrity digest %q", algo)
	}
	h.Write(data)
	return algo + "-" + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
