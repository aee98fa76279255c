package buildinfo

// Ces variables sont typiquement injectées à la compilation via -ldflags.
// Exemple :
//
//	-X github.com/Guilhem-Bonnet/livewatch/internal/buildinfo.Version=v0.0.0
//	-X github.com/Guilhem-Bonnet/livewatch/internal/buildinfo.Commit=abcdef
//	-X github.com/Guilhem-Bonnet/livewatch/internal/buildinfo.Date=2026-10-19
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

// UserAgent est envoyé sur chaque appel sortant vers les plateformes.
func UserAgent() string {
	return "livewatch/" + Version
}
