package signature

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	"github.com/willowglen/reportpdf/internal/domain"
)

// Source lists the signature-role image records for a report, filtered to
// the two signoff roles and not-deleted entries, ordered by role name.
type Source interface {
	ListSignatureImages(ctx context.Context, reportID string) ([]domain.SignatureImageRecord, error)
}

// Resolver turns image records into the renderer's SignatureSet. It never
// fails: a missing or unreadable signature image degrades that role to
// absent, because the report's primary content is still valid without it.
type Resolver struct {
	source Source
	logger *log.Logger
}

func NewResolver(source Source, logger *log.Logger) *Resolver {
	return &Resolver{source: source, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, reportID string) domain.SignatureSet {
	records, err := r.source.ListSignatureImages(ctx, reportID)
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("signature lookup degraded report_id=%s: %v", reportID, err)
		}
		return domain.SignatureSet{}
	}

	byRole := make(map[domain.SignatureRole][]domain.SignatureImageRecord)
	for _, record := range records {
		byRole[record.Role] = append(byRole[record.Role], record)
	}

	var set domain.SignatureSet
	set.AttendedBy = r.resolveRole(reportID, domain.RoleAttendedBy, byRole[domain.RoleAttendedBy])
	set.ApprovedBy = r.resolveRole(reportID, domain.RoleApprovedBy, byRole[domain.RoleApprovedBy])
	return set
}

// resolveRole admits a role only when exactly one record exists and its
// image file is readable and decodable. The detected format travels with
// the signature; file extensions are not trusted.
func (r *Resolver) resolveRole(reportID string, role domain.SignatureRole, records []domain.SignatureImageRecord) *domain.Signature {
	if len(records) != 1 {
		if len(records) > 1 && r.logger != nil {
			r.logger.Printf("signature role %s ambiguous report_id=%s records=%d, treating as absent", role, reportID, len(records))
		}
		return nil
	}

	record := records[0]
	data, err := os.ReadFile(record.Path)
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("signature image unreadable report_id=%s role=%s path=%s: %v", reportID, role, record.Path, err)
		}
		return nil
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("signature image undecodable report_id=%s role=%s path=%s: %v", reportID, role, record.Path, err)
		}
		return nil
	}

	return &domain.Signature{
		Role:        role,
		SignerName:  record.SignerName,
		ImagePath:   record.Path,
		Image:       data,
		ImageFormat: format,
		VerifiedAt:  record.VerifiedAt,
	}
}
