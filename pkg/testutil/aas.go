package testutil

import (
	"context"
	"fmt"

	"github.com/dukex/goalgate/pkg/aas"
	"github.com/dukex/goalgate/pkg/models"
)

// StaticAAS is an in-memory stand-in for an AAS server. Properties are keyed
// by PropertyKey.
type StaticAAS struct {
	Properties map[string]any
	Shells     []aas.Shell
}

func NewStaticAAS(properties map[string]any, shells []aas.Shell) *StaticAAS {
	if properties == nil {
		properties = map[string]any{}
	}

	return &StaticAAS{Properties: properties, Shells: shells}
}

func PropertyKey(submodelID, propertyPath string) string {
	return submodelID + "#" + propertyPath
}

func (s *StaticAAS) GetSubmodelProperty(_ context.Context, submodelID, propertyPath string) (any, error) {
	v, ok := s.Properties[PropertyKey(submodelID, propertyPath)]
	if !ok {
		return nil, fmt.Errorf("%w: %s in submodel %s", models.ErrPropertyNotFound, propertyPath, submodelID)
	}

	return v, nil
}

func (s *StaticAAS) ListShells(context.Context) ([]aas.Shell, error) {
	return s.Shells, nil
}
