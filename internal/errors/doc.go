// Package errors provides structured, actionable error messages for spindle.
//
// Every failure a build can produce maps onto a registered code:
//   - parse (E100-E119): malformed declarations, missing document root,
//     unsupported asset kinds
//   - config (E120-E139): unreadable or invalid configuration
//   - cli (E140-E159): command-level failures
//   - toolchain (E200-E219): a compiler or post-processor failed for one asset
//   - io (E300-E319): output writes, source reads, watch roots
//   - protocol (E400-E419): malformed proxy or upgrade requests
//
// # Usage
//
//	err := errors.Toolchain("scss", stderr).
//	    WithLocation("style.scss", 0, 0).
//	    WithSuggestion("Fix the stylesheet and save again")
//
//	errors.PrintError(err)
//	// ERROR E200: scss: Toolchain failed
//	//
//	//   style.scss
//	//
//	//   Error: expected ";".
//	//
//	//   Hint: Fix the stylesheet and save again
//	//
//	//   Learn more: https://spindle.dev/docs/errors/E200
package errors
