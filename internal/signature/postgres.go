package signature

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/willowglen/reportpdf/internal/domain"
)

// PGSource reads signature image records straight from the report-image
// tables. Used when the deployment gives this service database access
// instead of routing image metadata through the data API.
type PGSource struct {
	pool          *pgxpool.Pool
	imageBasePath string
}

func NewPGSource(ctx context.Context, databaseURL, imageBasePath string) (*PGSource, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PGSource{pool: pool, imageBasePath: imageBasePath}, nil
}

func (s *PGSource) Close() {
	s.pool.Close()
}

func (s *PGSource) ListSignatureImages(ctx context.Context, reportID string) ([]domain.SignatureImageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			rfi.image_name,
			rfi.stored_directory,
			rit.image_type_name,
			COALESCE(rfi.uploaded_by, ''),
			rfi.verified_at
		FROM report_form_images rfi
		JOIN report_form_image_types rit ON rfi.report_image_type_id = rit.id
		WHERE rfi.report_form_id = $1
		  AND rfi.is_deleted = FALSE
		  AND rit.image_type_name IN ('AttendedBySignature', 'ApprovedBySignature')
		ORDER BY rit.image_type_name
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("query signature images: %w", err)
	}
	defer rows.Close()

	var records []domain.SignatureImageRecord
	for rows.Next() {
		var (
			imageName       string
			storedDirectory string
			imageTypeName   string
			uploadedBy      string
			verifiedAt      *time.Time
		)
		if err := rows.Scan(&imageName, &storedDirectory, &imageTypeName, &uploadedBy, &verifiedAt); err != nil {
			return nil, fmt.Errorf("scan signature image: %w", err)
		}

		role := domain.RoleAttendedBy
		if imageTypeName == "ApprovedBySignature" {
			role = domain.RoleApprovedBy
		}
		record := domain.SignatureImageRecord{
			Role:       role,
			Path:       s.imagePath(reportID, storedDirectory, imageName),
			SignerName: uploadedBy,
		}
		if verifiedAt != nil {
			record.VerifiedAt = verifiedAt.UTC()
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read signature images: %w", err)
	}
	return records, nil
}

func (s *PGSource) imagePath(reportID, storedDirectory, imageName string) string {
	if storedDirectory != "" {
		if filepath.IsAbs(storedDirectory) {
			return filepath.Join(storedDirectory, imageName)
		}
		return filepath.Join(s.imageBasePath, storedDirectory, imageName)
	}
	return filepath.Join(s.imageBasePath, reportID, "Signatures", imageName)
}
