package suppliers

import (
	"fmt"
	"strings"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/shared"
)

func (s *Service) validate(sp Supplier) error {
	if strings.TrimSpace(sp.Code) == "" {
		return fmt.Errorf("%w: code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(sp.Name) == "" {
		return fmt.Errorf("%w: name", shared.ErrRequiredField)
	}
	if sp.TermsDays < 0 {
		return fmt.Errorf("%w: terms_days must not be negative", shared.ErrValidation)
	}
	return nil
}
