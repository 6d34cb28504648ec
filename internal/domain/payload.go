package domain

import "time"

// Field is one labeled value in a report section.
type Field struct {
	Label string
	Value string
}

// Table is a named grid of rows rendered as-is by every renderer.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// Section groups fields and tables under a heading. Section order is part
// of the payload: renderers emit sections in slice order, which keeps
// output byte-stable for a given payload.
type Section struct {
	Title   string
	Fields  []Field
	Tables  []Table
	Remarks string
}

type SignatureRole string

const (
	RoleAttendedBy SignatureRole = "AttendedBy"
	RoleApprovedBy SignatureRole = "ApprovedBy"
)

// Signature is one resolved signoff: image bytes plus signer metadata.
type Signature struct {
	Role       SignatureRole
	SignerName string
	ImagePath  string
	Image      []byte

	// ImageFormat is the decoded image format ("png", "jpeg", "gif"),
	// detected from the bytes rather than the file extension.
	ImageFormat string

	VerifiedAt time.Time
}

// SignatureSet holds the two signoff roles. A nil entry means the role is
// absent; rendering degrades to an empty signing box, never an error.
type SignatureSet struct {
	AttendedBy *Signature
	ApprovedBy *Signature
}

// SignatureImageRecord is one row from the image-association store before
// role resolution.
type SignatureImageRecord struct {
	Role       SignatureRole
	Path       string
	SignerName string
	VerifiedAt time.Time
}

// ReportPayload is the normalized, kind-agnostic envelope handed to a
// renderer. It is built once per job, owned by that job and immutable
// afterwards.
type ReportPayload struct {
	Kind     ReportKind
	Mode     Mode
	ReportID string

	// JobNo is the human job number used in display names; falls back to
	// the report id when the source data carries none.
	JobNo string

	Title    string
	Header   []Field
	Sections []Section

	// Signatures is populated in Final mode only.
	Signatures SignatureSet

	// GeneratedAt seeds the document dates so repeated renders of the
	// same payload are byte-identical.
	GeneratedAt time.Time
}

// ArtifactDescriptor is the outcome of a successful job. RelativePath and
// DisplayName follow the same convention as manually uploaded final
// reports, so consumers cannot distinguish provenance.
type ArtifactDescriptor struct {
	RelativePath string
	DisplayName  string
	SizeBytes    int64
	GeneratedAt  time.Time
}
