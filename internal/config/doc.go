// Package config provides configuration loading for spindle projects.
//
// Configuration lives in spindle.yaml (or .spindle.yaml, spindle.yml,
// spindle.json, .spindle.json) at the project root. Every field has a
// default, so a project without a config file builds index.html into dist/.
//
// # Configuration File Structure
//
//	build:
//	  target: index.html
//	  dist: dist
//	  release: false
//	  publicUrl: /
//	  integrity: sha384
//	watch:
//	  paths: [../shared]
//	  ignore: ["*.tmp"]
//	  debounce: 25ms
//	serve:
//	  port: 8080
//	  autoreload: true
//	  proxies:
//	    - prefix: /api
//	      backend: http://localhost:9000
//	tools:
//	  sass: sass
//
// .env and .env.local next to the config file are loaded first, and the
// SPINDLE_DIST, SPINDLE_PUBLIC_URL, SPINDLE_RELEASE and SPINDLE_PORT
// variables override the file.
package config
