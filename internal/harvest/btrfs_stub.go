//go:build !linux

package harvest

import (
	"fmt"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// probeStructural always degrades off Linux; btrfs tree search has no
// equivalent elsewhere
func probeStructural(root string) error {
	return fmt.Errorf("%w: only supported on linux", domain.ErrStructuralUnsupported)
}

func (h *Harvester) structuralScan(root string) ([]domain.Record, error) {
	return nil, domain.ErrStructuralUnsupported
}
