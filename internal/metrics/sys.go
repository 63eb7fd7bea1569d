package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

var startedAt = time.Now()

// SysHealth is a point-in-time snapshot of the process and its data.
type SysHealth struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	AllocMB       uint64 `json:"alloc_mb"`
	SysMB         uint64 `json:"sys_mb"`
	NumGC         uint32 `json:"num_gc"`
	Goroutines    int    `json:"goroutines"`
	DataDiskSize  string `json:"data_disk_size"`
	DBOpenConns   int    `json:"db_open_connections"`
	DBUnreachable bool   `json:"db_unreachable,omitempty"`
}

// GetSysHealth collects runtime figures, the size of dataPath and, when db
// is non-nil, its pool statistics and reachability.
func GetSysHealth(dataPath string, db *sql.DB) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h := SysHealth{
		Status:       "ok",
		Uptime:       time.Since(startedAt).Round(time.Second).String(),
		AllocMB:      m.Alloc / 1024 / 1024,
		SysMB:        m.Sys / 1024 / 1024,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		DataDiskSize: humanSize(dirSize(dataPath)),
	}
	if db != nil {
		h.DBOpenConns = db.Stats().OpenConnections
		if err := db.Ping(); err != nil {
			h.Status = "degraded"
			h.DBUnreachable = true
		}
	}
	return h
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

func humanSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
