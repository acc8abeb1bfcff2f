package registration

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Option is a selectable reference-list entry.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ListKind names a reference list served by the backend.
type ListKind string

const (
	ListSectors         ListKind = "sectors"
	ListSectorsAlt      ListKind = "sectors_alt"
	ListSizes           ListKind = "sizes"
	ListInsurers        ListKind = "insurers"
	ListIdentifierTypes ListKind = "identifier_types"
	ListCountries       ListKind = "countries"
)

// ReferenceSource fetches a reference list.
type ReferenceSource interface {
	ReferenceList(ctx context.Context, kind ListKind) ([]Option, error)
}

// FallbackIdentifierTypes is served when the identifier-type list is unavailable.
var FallbackIdentifierTypes = []Option{
	{Value: string(IdentifierTaxID), Label: "Tax ID (NIT)"},
	{Value: string(IdentifierNationalID), Label: "National ID (CC)"},
}

// Catalog holds every reference list the wizard renders.
type Catalog struct {
	Sectors         []Option `json:"sectors"`
	SectorsAlt      []Option `json:"sectors_alt"`
	Sizes           []Option `json:"sizes"`
	Insurers        []Option `json:"insurers"`
	IdentifierTypes []Option `json:"identifier_types"`
	Countries       []Option `json:"countries"`
}

// LoadCatalog fetches all reference lists concurrently. A failed list is
// logged and left empty, except identifier types which fall back to
// FallbackIdentifierTypes.
func LoadCatalog(ctx context.Context, src ReferenceSource, logger *slog.Logger) Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	var catalog Catalog
	targets := map[ListKind]*[]Option{
		ListSectors:         &catalog.Sectors,
		ListSectorsAlt:      &catalog.SectorsAlt,
		ListSizes:           &catalog.Sizes,
		ListInsurers:        &catalog.Insurers,
		ListIdentifierTypes: &catalog.IdentifierTypes,
		ListCountries:       &catalog.Countries,
	}

	if src != nil {
		g, gctx := errgroup.WithContext(ctx)
		for kind, target := range targets {
			kind, target := kind, target
			g.Go(func() error {
				options, err := src.ReferenceList(gctx, kind)
				if err != nil {
					logger.Warn("load reference list", slog.String("list", string(kind)), slog.Any("error", err))
					return nil
				}
				*target = options
				return nil
			})
		}
		_ = g.Wait()
	}

	if len(catalog.IdentifierTypes) == 0 {
		catalog.IdentifierTypes = append([]Option(nil), FallbackIdentifierTypes...)
	}
	return catalog
}
