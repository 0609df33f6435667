package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/filecleaner/internal/artifact"
	"github.com/JonMunkholm/filecleaner/internal/core"
	"github.com/JonMunkholm/filecleaner/internal/logging"
)

//go:generate templ generate -f status_page.templ

// statusPageView is the preformatted content of the HTML status page.
type statusPageView struct {
	Version   string
	Retention string
	Formats   string
	Jobs      string
	History   string
	Storage   string
	Files     []statusPageFile
}

type statusPageFile struct {
	Name     string
	Kind     string
	Size     string
	Modified string
}

func newStatusPageView(usage artifact.Usage, jobs core.JobLimiterStatus, retention string, historyEnabled bool) statusPageView {
	history := "disabled"
	if historyEnabled {
		history = "enabled"
	}

	v := statusPageView{
		Version:   Version,
		Retention: retention,
		Formats:   strings.Join(supportedFormats, ", "),
		Jobs:      fmt.Sprintf("%d running, %d free of %d", jobs.Active, jobs.Available, jobs.MaxConcurrent),
		History:   history,
		Storage:   fmt.Sprintf("%d files, %s", usage.FileCount, humanize.Bytes(uint64(usage.TotalBytes))),
		Files:     make([]statusPageFile, 0, len(usage.Files)),
	}
	for _, f := range usage.Files {
		v.Files = append(v.Files, statusPageFile{
			Name:     f.Name,
			Kind:     string(f.Kind),
			Size:     humanize.Bytes(uint64(f.Size)),
			Modified: humanize.Time(f.ModTime),
		})
	}
	return v
}

// renderStatusPage writes the HTML status page.
func (s *Server) renderStatusPage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.service.Store().Usage()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	view := newStatusPageView(usage, s.service.JobLimiterStatus(),
		humanHours(s.service.Store().Retention()), s.service.History().Enabled())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage(view).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render status page", "error", err)
	}
}
