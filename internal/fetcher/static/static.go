// Package static serves canned page text for dry runs and tests.
package static

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SampleNotice is the simulated ENARE news item used when no page is
// configured for a locator.
const SampleNotice = `
URGENTE: Saiu o edital do ENARE 2026!
O Exame Nacional de Residência Médica publicou hoje as normas.
São 45 vagas para Radiologia em diversas cidades.
Inscrições começam dia 20/10/2026 e vão até 10/11/2026.
A prova será dia 10/12/2026.
A taxa subiu para R$ 350,00.
Banca: FGV.
`

// ErrNoPage is returned for locators without canned text when no fallback is set.
var ErrNoPage = errors.New("no canned page for locator")

// Fetcher returns fixed text per locator.
type Fetcher struct {
	pages    map[string]string
	fallback string
}

// New builds a Fetcher. Locators missing from pages receive fallback; an
// empty fallback makes them fail with ErrNoPage.
func New(pages map[string]string, fallback string) *Fetcher {
	copied := make(map[string]string, len(pages))
	for k, v := range pages {
		copied[k] = v
	}
	return &Fetcher{pages: copied, fallback: fallback}
}

// NewSample returns a Fetcher that answers every locator with SampleNotice.
func NewSample() *Fetcher {
	return New(nil, SampleNotice)
}

// Fetch implements edital.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("static fetch canceled: %w", err)
	}
	if text, ok := f.pages[locator]; ok {
		return strings.TrimSpace(text), nil
	}
	if f.fallback == "" {
		return "", fmt.Errorf("%w %q", ErrNoPage, locator)
	}
	return strings.TrimSpace(f.fallback), nil
}
