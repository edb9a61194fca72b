//go:build js && wasm

// Command navaccel-wasm runs the navigation accelerator inside the browser.
//
//	go generate ./internal/api
//
// builds it into internal/api/static alongside wasm_exec.js.
//
// The page may set window.storefrontNav = {selector, markerClass} before the
// module starts.
package main

import (
	"syscall/js"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/logging"
	"github.com/JakeFAU/storefront/internal/navaccel"
	"github.com/JakeFAU/storefront/internal/navaccel/jsdom"
)

func main() {
	logger, err := logging.New(logging.Config{Development: true, Level: "warn"})
	if err != nil {
		logger = zap.NewNop()
	}
	// A reloaded module replaces the manager left by the previous instance.
	opts := navaccel.Options{Logger: logger, Force: true}
	if win, doc, ok := jsdom.Global(); ok {
		opts.Window = win
		opts.Document = doc
	}
	if cfg := js.Global().Get("storefrontNav"); cfg.Truthy() {
		if sel := cfg.Get("selector"); sel.Type() == js.TypeString {
			opts.Selector = sel.String()
		}
		if marker := cfg.Get("markerClass"); marker.Type() == js.TypeString {
			opts.MarkerClass = marker.String()
		}
	}

	manager := navaccel.Init(opts)
	teardown := js.FuncOf(func(js.Value, []js.Value) any {
		manager.Teardown()
		return nil
	})
	js.Global().Set("storefrontNavTeardown", teardown)

	select {}
}
