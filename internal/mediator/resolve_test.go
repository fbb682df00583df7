package mediator

import (
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

func TestRegistryResolve(t *testing.T) {
	daint := &model.Cluster{Name: "daint"}
	eiger := &model.Cluster{Name: "eiger"}
	r := NewRegistry([]*model.Cluster{daint, eiger})

	got, err := r.Resolve("eiger")
	require.NoError(t, err)
	require.Same(t, eiger, got)
}

func TestRegistryResolveNotFound(t *testing.T) {
	r := NewRegistry([]*model.Cluster{{Name: "daint"}})
	_, err := r.Resolve("missing")
	require.True(t, trace.IsNotFound(err))
}

func TestRegistryAllPreservesOrder(t *testing.T) {
	daint := &model.Cluster{Name: "daint"}
	eiger := &model.Cluster{Name: "eiger"}
	r := NewRegistry([]*model.Cluster{daint, eiger})
	require.Equal(t, []*model.Cluster{daint, eiger}, r.All())
}
