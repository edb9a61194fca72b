// Package api serves the storefront: server-rendered catalog, cart, checkout
// and account pages for shoppers, a JSON admin API guarded by an API key, and
// the operational endpoints (/healthz, /readyz, /metrics).
//
// Mutating shopper routes and the admin API sit behind fixed-window admission
// limiters. Pages carry the navigation accelerator bootstrap when enabled and
// its browser build is available, either generated into static/ or found in
// server.static_dir.
package api

//go:generate env GOOS=js GOARCH=wasm go build -o static/navaccel.wasm ../../cmd/navaccel-wasm
//go:generate sh -c "cp \"$(go env GOROOT)/lib/wasm/wasm_exec.js\" static/wasm_exec.js"
