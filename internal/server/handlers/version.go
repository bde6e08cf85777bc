package handlers

import (
	"net/http"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/appid"
)

// buildInfo is stamped by main through SetVersionInfo.
type buildInfo struct {
	version, commit, date string
	model                 string
}

var (
	buildMu sync.RWMutex
	build   = buildInfo{version: "dev", commit: "unknown", date: "unknown"}
)

func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	build.version, build.commit, build.date = version, commit, buildDate
	buildMu.Unlock()
}

// SetUpstreamModel records the completion model reported by /version.
func SetUpstreamModel(model string) {
	buildMu.Lock()
	build.model = model
	buildMu.Unlock()
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	App struct {
		Name      string `json:"name"`
		Version   string `json:"version"`
		Commit    string `json:"git_commit"`
		BuildDate string `json:"build_date"`
		GoVersion string `json:"go_version,omitempty"`
	} `json:"app"`
	Upstream     string `json:"upstream_model,omitempty"`
	Dependencies struct {
		Gofulmen string `json:"gofulmen"`
		Crucible string `json:"crucible"`
	} `json:"dependencies"`
	Runtime struct {
		Platform      string `json:"platform"`
		NumCPU        int    `json:"num_cpu"`
		NumGoroutines int    `json:"num_goroutines"`
	} `json:"runtime"`
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	buildMu.RLock()
	info := build
	buildMu.RUnlock()

	var resp VersionResponse
	resp.App.Name = appid.Get().BinaryName
	resp.App.Version = info.version
	resp.App.Commit = info.commit
	resp.App.BuildDate = info.date
	resp.App.GoVersion = runtime.Version()
	resp.Upstream = info.model

	deps := crucible.GetVersion()
	resp.Dependencies.Gofulmen = deps.Gofulmen
	resp.Dependencies.Crucible = deps.Crucible

	resp.Runtime.Platform = runtime.GOOS + "/" + runtime.GOARCH
	resp.Runtime.NumCPU = runtime.NumCPU()
	resp.Runtime.NumGoroutines = runtime.NumGoroutine()

	writeJSON(w, http.StatusOK, resp)
}
