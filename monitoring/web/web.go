// Package web holds the monitoring page.
package web

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// DevModeEnv names the environment variable that makes the monitor serve
// the page from the source tree, so that edits show up without rebuilding.
const DevModeEnv = "NETSIM_MONITOR_DEV"

//go:embed dist/*
var dist embed.FS

// GetAssets returns the files of the monitoring page.
func GetAssets() http.FileSystem {
	if devMode() {
		dir := sourceDir()
		log.Printf("monitor development mode, serving %s", dir)

		return http.Dir(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}

func sourceDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot locate the web package source")
	}

	return filepath.Join(filepath.Dir(file), "dist")
}

func devMode() bool {
	on, err := strconv.ParseBool(os.Getenv(DevModeEnv))

	return err == nil && on
}
