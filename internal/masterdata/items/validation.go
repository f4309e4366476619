package items

import (
	"fmt"
	"strings"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/shared"
)

func (s *Service) validate(it Item) error {
	if strings.TrimSpace(it.Code) == "" {
		return fmt.Errorf("%w: code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(it.Name) == "" {
		return fmt.Errorf("%w: name", shared.ErrRequiredField)
	}
	if strings.TrimSpace(it.Brand) == "" {
		return fmt.Errorf("%w: brand", shared.ErrRequiredField)
	}
	return nil
}
