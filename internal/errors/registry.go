package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Parse Errors (E100-E119)
	// ============================================

	"E100": {
		Category: CategoryParse,
		Message:  "Malformed asset declaration",
		Detail:   "An asset declaration is missing a required attribute or could not be read.",
		DocURL:   "https://spindle.dev/docs/errors/E100",
	},
	"E101": {
		Category: CategoryParse,
		Message:  "Missing document root",
		Detail:   "The source HTML has no <html>, <head> or <body> element.",
		DocURL:   "https://spindle.dev/docs/errors/E101",
	},
	"E102": {
		Category: CategoryParse,
		Message:  "Unsupported asset kind",
		Detail:   "The rel attribute of a data-spindle link names an asset kind spindle does not build.",
		DocURL:   "https://spindle.dev/docs/errors/E102",
	},

	// ============================================
	// Config Errors (E120-E139)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No spindle.yaml, .spindle.yaml, spindle.yml or spindle.json was found.",
		DocURL:   "https://spindle.dev/docs/errors/E120",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "The configuration file could not be decoded.",
		DocURL:   "https://spindle.dev/docs/errors/E121",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "Port must be between 1 and 65535.",
		DocURL:   "https://spindle.dev/docs/errors/E122",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Invalid proxy rule",
		Detail:   "Proxy prefixes must start with '/' and backends must be absolute http(s) or ws(s) URLs.",
		DocURL:   "https://spindle.dev/docs/errors/E123",
	},
	"E124": {
		Category: CategoryConfig,
		Message:  "Invalid build option",
		DocURL:   "https://spindle.dev/docs/errors/E124",
	},
	"E125": {
		Category: CategoryConfig,
		Message:  "Publishing is not configured",
		Detail:   "A bucket and AWS credentials are required to publish.",
		DocURL:   "https://spindle.dev/docs/errors/E125",
	},

	// ============================================
	// CLI Errors (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryCLI,
		Message:  "Build failed",
		Detail:   "One or more assets failed to build.",
		DocURL:   "https://spindle.dev/docs/errors/E140",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Refusing to clean directory",
		Detail:   "The dist directory must be inside the project and must not be the project root.",
		DocURL:   "https://spindle.dev/docs/errors/E141",
	},
	"E142": {
		Category: CategoryCLI,
		Message:  "Port in use",
		Detail:   "The development server port is already in use.",
		DocURL:   "https://spindle.dev/docs/errors/E142",
	},
	"E143": {
		Category: CategoryCLI,
		Message:  "Publish failed",
		Detail:   "Uploading the dist directory failed.",
		DocURL:   "https://spindle.dev/docs/errors/E143",
	},
	"E144": {
		Category: CategoryCLI,
		Message:  "Unknown project template",
		DocURL:   "https://spindle.dev/docs/errors/E144",
	},
	"E145": {
		Category: CategoryCLI,
		Message:  "Refusing to overwrite existing file",
		Detail:   "spindle init never replaces files that already exist.",
		DocURL:   "https://spindle.dev/docs/errors/E145",
	},

	// ============================================
	// Toolchain Errors (E200-E219)
	// ============================================

	"E200": {
		Category: CategoryToolchain,
		Message:  "Toolchain failed",
		Detail:   "An external tool or a post-processing step failed while building an asset.",
		DocURL:   "https://spindle.dev/docs/errors/E200",
	},
	"E201": {
		Category: CategoryToolchain,
		Message:  "Tool not found",
		Detail:   "The executable for this asset kind is not installed or not in PATH.",
		DocURL:   "https://spindle.dev/docs/errors/E201",
	},

	// ============================================
	// IO Errors (E300-E319)
	// ============================================

	"E300": {
		Category: CategoryIO,
		Message:  "Failed to write output",
		DocURL:   "https://spindle.dev/docs/errors/E300",
	},
	"E301": {
		Category: CategoryIO,
		Message:  "Failed to write index.html",
		DocURL:   "https://spindle.dev/docs/errors/E301",
	},
	"E302": {
		Category: CategoryIO,
		Message:  "Watch root unavailable",
		DocURL:   "https://spindle.dev/docs/errors/E302",
	},
	"E303": {
		Category: CategoryIO,
		Message:  "Failed to read source",
		DocURL:   "https://spindle.dev/docs/errors/E303",
	},
	"E304": {
		Category: CategoryIO,
		Message:  "Failed to upload object",
		DocURL:   "https://spindle.dev/docs/errors/E304",
	},

	// ============================================
	// Protocol Errors (E400-E419)
	// ============================================

	"E400": {
		Category: CategoryProtocol,
		Message:  "Malformed upgrade request",
		Detail:   "The request asked for a protocol upgrade but is not a valid WebSocket handshake.",
		DocURL:   "https://spindle.dev/docs/errors/E400",
	},
	"E401": {
		Category: CategoryProtocol,
		Message:  "Proxy backend unreachable",
		DocURL:   "https://spindle.dev/docs/errors/E401",
	},
	"E402": {
		Category: CategoryProtocol,
		Message:  "Connection hijacking not supported",
		DocURL:   "https://spindle.dev/docs/errors/E402",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
