package main

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"runtime"

	"github.com/Ko-stant/room-layout-sync/internal/config"
)

// StartProfiling starts the pprof server on its own port
func StartProfiling(cfg config.ProfilingConfig) {
	if !cfg.Enabled {
		return
	}

	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)

	if cfg.Port != "" {
		go func() {
			log.Printf("Starting pprof server on :%s", cfg.Port)
			log.Printf("CPU profile: http://localhost:%s/debug/pprof/profile", cfg.Port)
			log.Printf("Heap profile: http://localhost:%s/debug/pprof/heap", cfg.Port)
			log.Printf("Goroutine profile: http://localhost:%s/debug/pprof/goroutine", cfg.Port)

			if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
				log.Printf("pprof server failed: %v", err)
			}
		}()
	}
}
