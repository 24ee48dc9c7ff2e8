package app

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
)

// 构建时通过 -ldflags "-X .../pkg/app.Version=v1.2.0" 注入，
// 未注入的字段尽量从模块构建信息中补全
var (
	Version   = ""
	GitCommit = ""
	BuildDate = ""
	AppName   = ""
)

const unknown = "unknown"

func init() {
	if AppName == "" {
		AppName = "xdooria-lb"
		if exe, err := os.Executable(); err == nil {
			AppName = strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))
		}
	}
	fillFromBuildInfo()
}

// fillFromBuildInfo go build 会写入 vcs.revision 和 vcs.time
func fillFromBuildInfo() {
	bi, ok := debug.ReadBuildInfo()
	if ok {
		if Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = shortRevision(s.Value)
				}
			case "vcs.time":
				if BuildDate == "" {
					BuildDate = s.Value
				}
			}
		}
	}
	for _, p := range []*string{&Version, &GitCommit, &BuildDate} {
		if *p == "" {
			*p = unknown
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// Info 版本信息
type Info struct {
	AppName   string `json:"app_name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetInfo() Info {
	return Info{
		AppName:   AppName,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	var sb strings.Builder
	sb.WriteString(i.AppName)
	sb.WriteByte(' ')
	sb.WriteString(i.Version)
	sb.WriteString(" (commit ")
	sb.WriteString(i.GitCommit)
	sb.WriteString(", built ")
	sb.WriteString(i.BuildDate)
	sb.WriteString(", ")
	sb.WriteString(i.GoVersion)
	sb.WriteByte(' ')
	sb.WriteString(i.Platform)
	sb.WriteByte(')')
	return sb.String()
}
