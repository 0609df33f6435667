package fetch

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
)

// CheckContent rejects an HTML page (a login wall or an error page served
// with status 200) downloaded in place of a spreadsheet. Anything else is
// left for the loader to judge.
func CheckContent(data []byte, format tabular.Format) error {
	m := mimetype.Detect(data)
	if m.Is("text/html") {
		return apperror.New(apperror.DownloadError, "validate",
			"URL returned an HTML page instead of a %s file", format)
	}
	return nil
}
