// Package pdf holds the kind-specific document renderers. Each renderer
// is a pure payload-to-bytes function registered with the dispatch
// registry at startup. Layout differences between kinds are deliberate
// and small; the signature block is shared so final reports look the
// same regardless of kind.
package pdf

import (
	"errors"

	"github.com/willowglen/reportpdf/internal/domain"
	"github.com/willowglen/reportpdf/internal/render"
)

type style struct {
	fallbackTitle string
	subject       string
	// compactTables halves the row height for the check-grid heavy
	// kinds so a full PM report stays within a few pages.
	compactTables bool
}

// CM renders corrective maintenance reports.
func CM() render.Renderer {
	return renderer(style{
		fallbackTitle: "Corrective Maintenance Report",
		subject:       "CM Report Form",
	})
}

// ServerPM renders server preventive maintenance reports.
func ServerPM() render.Renderer {
	return renderer(style{
		fallbackTitle: "Server Preventive Maintenance Report",
		subject:       "Server PM Report Form",
		compactTables: true,
	})
}

// RTUPM renders RTU preventive maintenance reports.
func RTUPM() render.Renderer {
	return renderer(style{
		fallbackTitle: "RTU Preventive Maintenance Report",
		subject:       "RTU PM Report Form",
		compactTables: true,
	})
}

func renderer(s style) render.Renderer {
	return func(payload domain.ReportPayload) ([]byte, error) {
		if payload.ReportID == "" {
			return nil, errors.New("payload has no report id")
		}

		title := payload.Title
		if title == "" {
			title = s.fallbackTitle
		}

		d := newDoc(payload, s)
		d.title(title)
		d.headerGrid(payload.Header)
		for _, section := range payload.Sections {
			d.section(section)
		}
		if payload.Mode == domain.ModeFinal {
			d.signatureBlock(payload.Signatures)
		}
		return d.output()
	}
}
