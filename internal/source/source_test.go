package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Fetch(ctx context.Context, req Request) (*Payload, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	assert.Nil(t, reg.Get("sidra"))

	a := &stubAdapter{name: "IBGE_SIDRA"}
	reg.Register("sidra", a)
	reg.Register("csv", &stubAdapter{name: "ARQUIVO_CSV"})

	assert.Same(t, a, reg.Get("sidra"))
	assert.ElementsMatch(t, []string{"sidra", "csv"}, reg.List())
}

func TestRegistryOverwrite(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("sidra", &stubAdapter{name: "old"})
	replacement := &stubAdapter{name: "new"}
	reg.Register("sidra", replacement)

	assert.Same(t, replacement, reg.Get("sidra"))
}
